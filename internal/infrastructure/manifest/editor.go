package manifest

import (
	"github.com/relicta-tech/changelogs/internal/errors"
	"github.com/relicta-tech/changelogs/internal/fileutil"
)

// Read returns the current value stored at t.
func Read(t Target) (string, error) {
	const op = "manifest.Read"

	data, err := fileutil.ReadFile(t.Path())
	if err != nil {
		return "", errors.IOWrap(err, op, "failed to read "+t.Path())
	}
	v, err := t.read(data)
	if err != nil {
		return "", errors.ManifestWrap(err, op, t.String())
	}
	return v, nil
}

// Apply replaces the value stored at t with value. The file is rewritten
// atomically and is left untouched when the edit fails.
func Apply(t Target, value string) error {
	const op = "manifest.Apply"

	data, err := fileutil.ReadFile(t.Path())
	if err != nil {
		return errors.IOWrap(err, op, "failed to read "+t.Path())
	}
	out, err := t.apply(data, value)
	if err != nil {
		return errors.ManifestWrap(err, op, t.String())
	}
	if string(out) == string(data) {
		return nil
	}
	if err := fileutil.WriteFile(t.Path(), out); err != nil {
		return errors.IOWrap(err, op, "failed to write "+t.Path())
	}
	return nil
}

// ApplyAll applies value to every target in order and stops at the first
// failure. Targets applied before the failure stay applied.
func ApplyAll(targets []Target, value string) error {
	for _, t := range targets {
		if err := Apply(t, value); err != nil {
			return err
		}
	}
	return nil
}

// RewriteTOMLStrings passes every string value of a TOML file to fn, with
// the key path of the value (or of the array holding it). Values for which
// fn returns true are replaced in place. It reports whether the file changed.
func RewriteTOMLStrings(file string, fn func(key []string, value string) (string, bool)) (bool, error) {
	const op = "manifest.RewriteTOMLStrings"

	data, err := fileutil.ReadFile(file)
	if err != nil {
		return false, errors.IOWrap(err, op, "failed to read "+file)
	}
	out, changed, err := rewriteStrings(data, fn)
	if err != nil {
		return false, errors.ManifestWrap(err, op, file)
	}
	if !changed {
		return false, nil
	}
	if err := fileutil.WriteFile(file, out); err != nil {
		return false, errors.IOWrap(err, op, "failed to write "+file)
	}
	return true, nil
}

// RewriteINIList passes each item of a list-valued INI key, such as
// install_requires in setup.cfg, to fn and replaces the items it rewrites.
func RewriteINIList(file, section, key string, fn func(item string) (string, bool)) (bool, error) {
	const op = "manifest.RewriteINIList"

	data, err := fileutil.ReadFile(file)
	if err != nil {
		return false, errors.IOWrap(err, op, "failed to read "+file)
	}
	out, changed := rewriteList(data, section, key, fn)
	if !changed {
		return false, nil
	}
	if err := fileutil.WriteFile(file, out); err != nil {
		return false, errors.IOWrap(err, op, "failed to write "+file)
	}
	return true, nil
}

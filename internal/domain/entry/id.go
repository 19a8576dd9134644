package entry

import (
	"fmt"
	"math/rand/v2"
)

var adjectives = []string{
	"brave", "calm", "dark", "eager", "fair", "gentle", "happy", "icy", "jolly", "keen", "lively",
	"merry", "nice", "odd", "proud", "quick", "rare", "shy", "tall", "unique", "vast", "warm",
	"young", "zesty", "bold", "cool", "dry", "easy", "fast", "good", "hot", "kind", "lazy", "mild",
	"neat", "old", "plain", "quiet", "rich", "safe", "tidy", "ugly", "vain", "weak", "aged", "big",
	"cute", "dull", "evil", "fine",
}

var nouns = []string{
	"lions", "bears", "wolves", "eagles", "hawks", "foxes", "deer", "owls", "cats", "dogs",
	"birds", "fish", "frogs", "bees", "ants", "mice", "rats", "bats", "crows", "doves", "ducks",
	"geese", "hens", "pigs", "cows", "goats", "sheep", "horses", "mules", "donkeys", "tigers",
	"pandas", "koalas", "seals", "whales", "sharks", "crabs", "clams", "snails", "slugs", "trees",
	"rocks", "waves", "winds", "clouds", "stars", "moons", "suns", "hills", "lakes",
}

var verbs = []string{
	"dance", "sing", "jump", "run", "walk", "swim", "fly", "crawl", "climb", "slide", "roll",
	"spin", "twist", "shake", "wave", "bow", "nod", "wink", "smile", "laugh", "cry", "shout",
	"whisper", "hum", "buzz", "roar", "growl", "bark", "meow", "chirp", "play", "rest", "sleep",
	"wake", "eat", "drink", "cook", "bake", "read", "write", "draw", "paint", "build", "break",
	"fix", "clean", "wash", "dry", "fold", "pack",
}

// GenerateID returns a human-memorable adjective-noun-verb slug.
func GenerateID() string {
	return fmt.Sprintf("%s-%s-%s",
		adjectives[rand.IntN(len(adjectives))],
		nouns[rand.IntN(len(nouns))],
		verbs[rand.IntN(len(verbs))],
	)
}

// GenerateUniqueID returns a slug for which taken reports false. After a
// handful of collisions a numeric suffix is appended.
func GenerateUniqueID(taken func(id string) bool) string {
	const attempts = 16
	for i := 0; i < attempts; i++ {
		id := GenerateID()
		if !taken(id) {
			return id
		}
	}
	base := GenerateID()
	for n := 2; ; n++ {
		id := fmt.Sprintf("%s-%d", base, n)
		if !taken(id) {
			return id
		}
	}
}

package builtin

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	mathrand "math/rand/v2"
	"strings"
)

// =============================================================================
// Faker Data
// =============================================================================

var fakerFirstNames = []string{
	"James", "Mary", "Robert", "Patricia", "John", "Jennifer", "Michael", "Linda",
	"David", "Elizabeth", "William", "Barbara", "Richard", "Susan", "Joseph", "Jessica",
	"Thomas", "Sarah", "Charles", "Karen", "Wei", "Yuki", "Olga", "Ahmed", "Priya",
}

var fakerLastNames = []string{
	"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller", "Davis",
	"Rodriguez", "Martinez", "Hernandez", "Lopez", "Wilson", "Anderson", "Taylor",
	"Thomas", "Moore", "Jackson", "Martin", "Lee", "Chen", "Tanaka", "Novak", "Singh",
}

var fakerDomains = []string{
	"example.com", "example.org", "example.net", "mail.test", "inbox.test", "corp.test",
}

var fakerColors = []string{
	"red", "green", "blue", "yellow", "purple", "orange", "pink", "brown",
	"black", "white", "gray", "cyan", "magenta", "teal", "navy", "maroon",
	"olive", "lime", "aqua", "silver", "gold", "indigo", "violet", "coral",
}

var fakerAnimals = []string{
	"cat", "dog", "horse", "cow", "sheep", "goat", "rabbit", "fox", "wolf", "bear",
	"lion", "tiger", "zebra", "giraffe", "elephant", "otter", "badger", "owl", "eagle", "whale",
}

var fakerLorem = []string{
	"lorem", "ipsum", "dolor", "sit", "amet", "consectetur", "adipiscing", "elit",
	"sed", "do", "eiusmod", "tempor", "incididunt", "ut", "labore", "et", "dolore",
	"magna", "aliqua", "enim", "minim", "veniam", "quis", "nostrud", "exercitation",
}

var fakerCompanyWords = []string{
	"Acme", "Globex", "Initech", "Umbrella", "Stark", "Wayne", "Hooli", "Vandelay",
	"Cyberdyne", "Tyrell", "Soylent", "Wonka", "Gringotts", "Oscorp", "Aperture",
}

var fakerCompanySuffixes = []string{
	"Inc", "LLC", "Group", "Ltd", "and Sons", "Holdings", "Labs", "Industries",
}

var fakerStreets = []string{
	"Main Street", "Oak Avenue", "Maple Drive", "Cedar Lane", "Pine Road",
	"Elm Street", "Washington Boulevard", "Lake View Court", "Hill Road", "Park Place",
}

var fakerCities = []string{
	"Springfield", "Riverside", "Franklin", "Greenville", "Bristol", "Clinton",
	"Fairview", "Salem", "Madison", "Georgetown", "Arlington", "Ashland",
}

var fakerStates = []string{
	"AL", "CA", "CO", "FL", "GA", "IL", "MA", "NY", "OH", "OR", "TX", "WA",
}

var fakerLanguages = []string{
	"Go", "Rust", "Python", "Java", "Kotlin", "TypeScript", "C", "Zig", "Haskell", "Elixir",
}

// pick returns a random element of items.
func pick(items []string) string {
	return items[mathrand.IntN(len(items))]
}

// =============================================================================
// Faker Generation Functions
// =============================================================================

// fakerName generates a random "First Last" name.
func fakerName() string {
	return pick(fakerFirstNames) + " " + pick(fakerLastNames)
}

// fakerEmail generates a random email address.
func fakerEmail() string {
	user := strings.ToLower(pick(fakerFirstNames) + "." + pick(fakerLastNames))
	return fmt.Sprintf("%s%d@%s", user, mathrand.IntN(100), pick(fakerDomains))
}

// fakerCompany generates a random company name.
func fakerCompany() string {
	return pick(fakerCompanyWords) + " " + pick(fakerCompanySuffixes)
}

// fakerURL generates a random URL.
func fakerURL() string {
	return fmt.Sprintf("https://www.%s.%s", strings.ToLower(pick(fakerCompanyWords)), pick([]string{"com", "org", "net", "io"}))
}

// fakerPhoneNumber generates a random phone number in (###) ###-#### format.
func fakerPhoneNumber() string {
	return fmt.Sprintf("(%03d) %03d-%04d", 200+mathrand.IntN(800), mathrand.IntN(1000), mathrand.IntN(10000))
}

// fakerAddress generates a random full postal address.
func fakerAddress() string {
	return fmt.Sprintf(
		"%d %s, %s, %s %05d",
		1+mathrand.IntN(9999),
		pick(fakerStreets),
		pick(fakerCities),
		pick(fakerStates),
		mathrand.IntN(100000),
	)
}

// fakerMD5 generates a random MD5 hex digest.
func fakerMD5() string {
	var b [16]byte
	for i := range b {
		b[i] = byte(mathrand.IntN(256))
	}
	sum := md5.Sum(b[:])
	return hex.EncodeToString(sum[:])
}

// fakerFuncs returns the faker style $random.* built-ins.
func fakerFuncs() []Function {
	return []Function{
		constant("$random.name", "$random.name", func(Context) string { return fakerName() }),
		constant("$random.email", "$random.email", func(Context) string { return fakerEmail() }),
		constant("$random.color", "$random.color", func(Context) string { return pick(fakerColors) }),
		constant("$random.animal", "$random.animal", func(Context) string { return pick(fakerAnimals) }),
		constant("$random.lorem", "$random.lorem", func(Context) string { return pick(fakerLorem) }),
		constant("$random.company.name", "$random.company.name", func(Context) string { return fakerCompany() }),
		constant("$random.internet", "$random.internet", func(Context) string { return fakerURL() }),
		constant("$random.phoneNumber", "$random.phoneNumber", func(Context) string { return fakerPhoneNumber() }),
		constant("$random.address.full", "$random.address.full", func(Context) string { return fakerAddress() }),
		constant("$random.crypto", "$random.crypto", func(Context) string { return fakerMD5() }),
		constant(
			"$random.programmingLanguage",
			"$random.programmingLanguage",
			func(Context) string { return pick(fakerLanguages) },
		),
	}
}

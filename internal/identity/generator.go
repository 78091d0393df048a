// Package identity produces synthetic account identities.
//
// Output is a pure function of the seed: two generators built with the same
// seed yield the same sequence of pools and identities. Identities are
// plausible, not unique; logins may collide with existing accounts.
package identity

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/brianvoe/gofakeit/v7"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	// PoolSize is the number of entries in each categorical pool.
	PoolSize = 8

	DepartmentPrefix = "fake department - "
	OfficePrefix     = "fake office - "

	NotesPrefix = "Created by Papercut Seeder - Random words - "
	HomePrefix  = "/home/users/"
	AliasSuffix = "-alias"

	maxPIN = 1000
)

// AccountIdentity is one synthetic user. It is immutable once generated.
type AccountIdentity struct {
	Login         string
	FirstName     string
	LastName      string
	FullName      string
	PrimaryCard   string
	SecondaryCard string
	Email         string
	Alias         string
	Notes         string
	Office        string
	Department    string
	Home          string
	PIN           string
	Restricted    bool
}

// Pools are the categorical values identities draw from.
type Pools struct {
	Departments []string
	Offices     []string
}

// Generator yields synthetic identities from an explicitly seeded source. It
// is not safe for concurrent use.
type Generator struct {
	seed  uint64
	faker *gofakeit.Faker
	lower cases.Caser
}

// ResolveSeed returns seed, or a time-based seed when seed is zero.
func ResolveSeed(seed uint64) uint64 {
	if seed == 0 {
		return uint64(time.Now().UnixNano())
	}
	return seed
}

// NewGenerator creates a generator for the given seed. A zero seed is
// replaced by a time-based one; Seed reports the value actually used.
func NewGenerator(seed uint64) *Generator {
	seed = ResolveSeed(seed)
	return &Generator{
		seed:  seed,
		faker: gofakeit.New(seed),
		lower: cases.Lower(language.Und),
	}
}

// Seed returns the seed in use, for reproducing a run.
func (g *Generator) Seed() uint64 {
	return g.seed
}

// NewPools draws PoolSize departments and offices.
func (g *Generator) NewPools() Pools {
	pools := Pools{
		Departments: make([]string, PoolSize),
		Offices:     make([]string, PoolSize),
	}
	for i := range PoolSize {
		pools.Departments[i] = DepartmentPrefix + g.faker.RandomString(departmentNames)
	}
	for i := range PoolSize {
		pools.Offices[i] = OfficePrefix + g.faker.RandomString(departmentNames)
	}
	return pools
}

// Generate returns one identity drawing department and office from pools.
// Empty pools leave the corresponding field empty.
func (g *Generator) Generate(pools Pools) AccountIdentity {
	first := g.faker.FirstName()
	last := g.faker.LastName()
	login := g.username(first, last)

	words := make([]string, 5)
	for i := range words {
		words[i] = g.faker.Word()
	}

	return AccountIdentity{
		Login:         login,
		FirstName:     first,
		LastName:      last,
		FullName:      first + " " + last,
		PrimaryCard:   g.faker.Regex(`[a-z0-9]{8}`),
		SecondaryCard: g.faker.Regex(`[a-z0-9]{8}`),
		Email:         g.email(first, last),
		Alias:         login + AliasSuffix,
		Notes:         NotesPrefix + strings.Join(words, " "),
		Office:        g.pick(pools.Offices),
		Department:    g.pick(pools.Departments),
		Home:          HomePrefix + login,
		PIN:           fmt.Sprintf("%04d", g.faker.IntRange(0, maxPIN)),
		Restricted:    false,
	}
}

func (g *Generator) pick(pool []string) string {
	if len(pool) == 0 {
		return ""
	}
	return pool[g.faker.IntRange(0, len(pool)-1)]
}

func (g *Generator) username(first, last string) string {
	first = g.lower.String(sanitize(first))
	last = g.lower.String(sanitize(last))

	switch g.faker.IntRange(0, 2) {
	case 0:
		return first + "." + last
	case 1:
		return first + "_" + last + g.faker.DigitN(2)
	default:
		return first + last + g.faker.DigitN(2)
	}
}

func (g *Generator) email(first, last string) string {
	local := g.lower.String(sanitize(first) + "." + sanitize(last))
	return local + "@" + g.faker.DomainName()
}

// sanitize drops everything but letters and digits.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}

var departmentNames = []string{
	"Accounting", "Administration", "Archives", "Customer Service",
	"Design", "Engineering", "Facilities", "Finance",
	"Human Resources", "Legal", "Logistics", "Marketing",
	"Operations", "Procurement", "Quality", "Research",
	"Sales", "Security", "Support", "Training",
}

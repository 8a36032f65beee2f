// Package selectors defines the named UI locators used to drive the bank's
// web pages. Locators are grouped by page area (category) and addressed
// through typed Locator values instead of free-form strings.
package selectors

import (
	"errors"
	"fmt"
	"sort"
)

// Version is bumped whenever categories or fields are added or renamed.
const Version = 1

type Category string

type Field string

const (
	Login        Category = "login"
	Dashboard    Category = "dashboard"
	Transactions Category = "transactions"
)

// Locator identifies one configurable field within a category.
type Locator struct {
	Category Category
	Field    Field
}

func (l Locator) String() string {
	return fmt.Sprintf("%s.%s", l.Category, l.Field)
}

var (
	UsernameInput = Locator{Login, "usernameInput"}
	PasswordInput = Locator{Login, "passwordInput"}
	SubmitButton  = Locator{Login, "submitButton"}

	// AccountItem matches one row or card per bank account.
	AccountItem = Locator{Dashboard, "accountItem"}
	// AccountName is looked up inside an AccountItem.
	AccountName = Locator{Dashboard, "accountName"}
	// AccountLink is looked up inside an AccountItem and clicked instead of
	// the item itself when present.
	AccountLink = Locator{Dashboard, "accountLink"}

	FilterButton      = Locator{Transactions, "filterButton"}
	DateRangeStart    = Locator{Transactions, "dateRangeStart"}
	DateRangeEnd      = Locator{Transactions, "dateRangeEnd"}
	ApplyFilterButton = Locator{Transactions, "applyFilterButton"}
	DownloadButton    = Locator{Transactions, "downloadButton"}
	CSVOption         = Locator{Transactions, "csvOption"}
)

// All lists every known locator in a stable order.
var All = []Locator{
	UsernameInput, PasswordInput, SubmitButton,
	AccountItem, AccountName, AccountLink,
	FilterButton, DateRangeStart, DateRangeEnd, ApplyFilterButton, DownloadButton, CSVOption,
}

var ErrUnknownLocator = errors.New("unknown locator")

// Config maps category -> field -> locator string. An empty string means
// the corresponding interaction is skipped.
type Config map[Category]map[Field]string

// Defaults returns the built-in placeholder locators. They are generic
// guesses and usually have to be adjusted for the actual bank.
func Defaults() Config {
	return Config{
		Login: {
			"usernameInput": `input[type="text"]`,
			"passwordInput": `input[type="password"]`,
			"submitButton":  `button[type="submit"]`,
		},
		Dashboard: {
			"accountItem": ".account-list-item",
			"accountName": ".account-name",
			"accountLink": "a",
		},
		Transactions: {
			"filterButton":      `button[aria-label="Filter"]`,
			"dateRangeStart":    `input[name="startDate"]`,
			"dateRangeEnd":      `input[name="endDate"]`,
			"applyFilterButton": ".apply-filter-btn",
			"downloadButton":    ".download-export-btn",
			"csvOption":         ".export-csv-option",
		},
	}
}

func isKnown(l Locator) bool {
	for _, k := range All {
		if k == l {
			return true
		}
	}
	return false
}

// Lookup resolves a locator. Fields that are configured as empty strings
// resolve to "" without error. A locator that is not part of the model
// returns ErrUnknownLocator.
func (c Config) Lookup(l Locator) (string, error) {
	if !isKnown(l) {
		return "", fmt.Errorf("%w: %s", ErrUnknownLocator, l)
	}
	if fields, ok := c[l.Category]; ok {
		if v, ok := fields[l.Field]; ok {
			return v, nil
		}
	}
	return Defaults()[l.Category][l.Field], nil
}

// Get is like Lookup for locators known at compile time.
func (c Config) Get(l Locator) string {
	v, _ := c.Lookup(l)
	return v
}

// WithDefaults returns a copy of c where every absent category or field
// is filled in from Defaults. Configured values, including empty ones,
// are kept. Fields that are not part of the model are preserved as well
// so that a newer settings file survives a round trip.
func (c Config) WithDefaults() Config {
	out := Defaults()
	for cat, fields := range c {
		if _, ok := out[cat]; !ok {
			out[cat] = map[Field]string{}
		}
		for f, v := range fields {
			out[cat][f] = v
		}
	}
	return out
}

// Clone returns a deep copy.
func (c Config) Clone() Config {
	out := make(Config, len(c))
	for cat, fields := range c {
		m := make(map[Field]string, len(fields))
		for f, v := range fields {
			m[f] = v
		}
		out[cat] = m
	}
	return out
}

// Missing returns the given locators that resolve to an empty string,
// sorted by name.
func (c Config) Missing(required ...Locator) []Locator {
	missing := []Locator{}
	for _, l := range required {
		if c.Get(l) == "" {
			missing = append(missing, l)
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i].String() < missing[j].String() })
	return missing
}

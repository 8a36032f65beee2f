// Package settings is the file backed store for everything the operator
// edits at runtime: importer credentials, locators and account mappings.
package settings

import (
	"github.com/jakopako/bankpull/internal/selectors"
)

// FireflySettings configures the Firefly III Data Importer.
type FireflySettings struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Secret string `json:"secret"`
}

// BankSettings holds the bank's entry points. DashboardURL is optional;
// without it the workflow returns to the account list through the
// browser history.
type BankSettings struct {
	LoginURL     string `json:"loginUrl"`
	DashboardURL string `json:"dashboardUrl"`
}

// AccountMapping maps an account name as shown by the bank to the
// importer configuration file used for it.
type AccountMapping struct {
	BankAccountName   string `json:"bankAccountName"`
	FireflyConfigPath string `json:"fireflyConfigPath"`
}

// ScheduleSettings enables periodic imports of the last LookbackDays days.
// Cron uses the seconds-first six field syntax, e.g. "0 0 6 * * *".
type ScheduleSettings struct {
	Cron         string `json:"cron"`
	LookbackDays int    `json:"lookbackDays"`
	DateLayout   string `json:"dateLayout"`
	Locale       string `json:"locale"`
}

// WorkflowSettings tunes the waits of an import run. Values are milliseconds.
type WorkflowSettings struct {
	DiscoveryTimeoutMS int `json:"discoveryTimeoutMs"`
	FilterSettleMS     int `json:"filterSettleMs"`
	DownloadPollMS     int `json:"downloadPollMs"`
	DownloadAttempts   int `json:"downloadAttempts"`
	// StepTimeoutMS bounds every single page interaction of an account.
	StepTimeoutMS int `json:"stepTimeoutMs"`
}

type Settings struct {
	Version   int              `json:"version"`
	Firefly   FireflySettings  `json:"firefly"`
	Bank      BankSettings     `json:"bank"`
	Selectors selectors.Config `json:"selectors"`
	Accounts  []AccountMapping `json:"accounts"`
	Schedule  ScheduleSettings `json:"schedule"`
	Workflow  WorkflowSettings `json:"workflow"`
}

// Default returns the settings used when no file exists yet.
func Default() Settings {
	return Settings{
		Version: selectors.Version,
		Firefly: FireflySettings{
			URL: "http://firefly-importer:8080",
		},
		Bank: BankSettings{
			LoginURL: "https://online.macquarie.com.au",
		},
		Selectors: selectors.Defaults(),
		Accounts:  []AccountMapping{},
		Schedule: ScheduleSettings{
			LookbackDays: 7,
			DateLayout:   "02/01/2006",
			Locale:       "en_US",
		},
		Workflow: WorkflowSettings{
			DiscoveryTimeoutMS: 10000,
			FilterSettleMS:     2000,
			DownloadPollMS:     1000,
			DownloadAttempts:   30,
			StepTimeoutMS:      30000,
		},
	}
}

// Snapshot is the read-only view an import run works on.
type Snapshot struct {
	Bank      BankSettings
	Selectors selectors.Config
	Accounts  []AccountMapping
	Workflow  WorkflowSettings
}

// Mapping returns the mapping for an account name. If the name was
// mapped more than once the last entry wins.
func (s Snapshot) Mapping(name string) (AccountMapping, bool) {
	for i := len(s.Accounts) - 1; i >= 0; i-- {
		if s.Accounts[i].BankAccountName == name {
			return s.Accounts[i], true
		}
	}
	return AccountMapping{}, false
}

// MappedNames returns all mapped account names.
func (s Snapshot) MappedNames() []string {
	names := make([]string, 0, len(s.Accounts))
	for _, a := range s.Accounts {
		names = append(names, a.BankAccountName)
	}
	return names
}

func (s Settings) clone() Settings {
	out := s
	out.Selectors = s.Selectors.Clone()
	out.Accounts = append([]AccountMapping{}, s.Accounts...)
	return out
}

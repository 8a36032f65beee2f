package bank

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jakopako/bankpull/internal/browser/browsertest"
	"github.com/jakopako/bankpull/internal/selectors"
)

func TestDiscoverDocumentOrder(t *testing.T) {
	page := &browsertest.Page{Document: browsertest.Dashboard("Everyday", "Savings", "Offset")}
	accounts, err := Discover(context.Background(), page, selectors.Defaults(), time.Second)
	if err != nil {
		t.Fatalf("got unexpected error: %v", err)
	}
	expected := []string{"Everyday", "Savings", "Offset"}
	if len(accounts) != len(expected) {
		t.Fatalf("expected %d accounts, got %d", len(expected), len(accounts))
	}
	for i, e := range expected {
		if accounts[i].Name != e || accounts[i].Ordinal != i {
			t.Fatalf("expected %d:%s but got %d:%s", i, e, accounts[i].Ordinal, accounts[i].Name)
		}
	}
}

func TestDiscoverStable(t *testing.T) {
	page := &browsertest.Page{Document: browsertest.Dashboard("A", "B", "C", "D")}
	first, _ := Discover(context.Background(), page, selectors.Defaults(), time.Second)
	second, _ := Discover(context.Background(), page, selectors.Defaults(), time.Second)
	if len(first) != len(second) {
		t.Fatalf("repeated discovery returned different lengths")
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("repeated discovery differs at %d: %v vs %v", i, first[i], second[i])
		}
	}
}

func TestDiscoverFallbackName(t *testing.T) {
	html := `<div class="account-list-item"><span class="account-name">  Main  </span></div>
<div class="account-list-item"><span class="balance">$10</span></div>`
	page := &browsertest.Page{Document: html}
	accounts, err := Discover(context.Background(), page, selectors.Defaults(), time.Second)
	if err != nil {
		t.Fatalf("got unexpected error: %v", err)
	}
	if accounts[0].Name != "Main" {
		t.Fatalf("expected trimmed name 'Main', got '%s'", accounts[0].Name)
	}
	if accounts[1].Name != "Account 1" {
		t.Fatalf("expected synthetic name 'Account 1', got '%s'", accounts[1].Name)
	}
}

func TestDiscoverTimeout(t *testing.T) {
	page := &browsertest.Page{Document: "<html><body><form id=\"login\"></form></body></html>"}
	start := time.Now()
	_, err := Discover(context.Background(), page, selectors.Defaults(), 50*time.Millisecond)
	if !errors.Is(err, ErrDiscoveryTimeout) {
		t.Fatalf("expected ErrDiscoveryTimeout, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("discovery did not respect its timeout")
	}
	if page.Waits() != 1 {
		t.Fatalf("expected a single wait, got %d", page.Waits())
	}
}

func TestDiscoverUnconfiguredItemLocator(t *testing.T) {
	sel := selectors.Config{selectors.Dashboard: {"accountItem": ""}}
	page := &browsertest.Page{Document: browsertest.Dashboard("A")}
	_, err := Discover(context.Background(), page, sel, time.Second)
	if !errors.Is(err, ErrDiscoveryTimeout) {
		t.Fatalf("expected ErrDiscoveryTimeout, got %v", err)
	}
	if page.Waits() != 0 {
		t.Fatalf("expected no wait without an item locator")
	}
}

func TestParseAccountsCustomSelectors(t *testing.T) {
	sel := selectors.Config{selectors.Dashboard: {"accountItem": "tr.acct", "accountName": "td.name"}}
	html := `<table><tr class="acct"><td class="name">Visa</td></tr><tr class="other"><td class="name">X</td></tr><tr class="acct"><td class="name">Home Loan</td></tr></table>`
	accounts, err := ParseAccounts(html, sel)
	if err != nil {
		t.Fatalf("got unexpected error: %v", err)
	}
	names := Names(accounts)
	if len(names) != 2 || names[0] != "Visa" || names[1] != "Home Loan" {
		t.Fatalf("unexpected accounts %v", names)
	}
}

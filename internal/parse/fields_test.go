package parse

import (
	"reflect"
	"testing"
)

func TestExtractFieldsPromptGated(t *testing.T) {
	t.Parallel()

	text := "Contact: john@example.com or call (555) 123-4567 before 2024-01-15."

	fields := ExtractFields(text, "Extract the email and phone number")
	if got := fields["email"]; got != "john@example.com" {
		t.Fatalf("email = %v", got)
	}
	if got := fields["phone"]; got != "(555) 123-4567" {
		t.Fatalf("phone = %v", got)
	}
	if _, ok := fields["date"]; ok {
		t.Fatalf("date should not be extracted without prompt mention")
	}
}

func TestExtractFieldsMultipleMatchesYieldList(t *testing.T) {
	t.Parallel()

	text := "a@x.com and b@y.org"
	fields := ExtractFields(text, "list all emails")

	want := []string{"a@x.com", "b@y.org"}
	if !reflect.DeepEqual(fields["email"], want) {
		t.Fatalf("email = %v, want %v", fields["email"], want)
	}
}

func TestExtractFieldsNoMatchOmitsKey(t *testing.T) {
	t.Parallel()

	fields := ExtractFields("no addresses here", "find the email")
	if _, ok := fields["email"]; ok {
		t.Fatalf("email key should be omitted when nothing matches")
	}
	if len(fields) != 0 {
		t.Fatalf("expected empty map, got %v", fields)
	}
}

func TestExtractFieldsDateAndAmount(t *testing.T) {
	t.Parallel()

	text := "Invoice dated 12/31/2023, total $1,234.56"
	fields := ExtractFields(text, "extract the date and amount due")

	if got := fields["date"]; got != "12/31/2023" {
		t.Fatalf("date = %v", got)
	}
	if got := fields["amount"]; got != "$1,234.56" {
		t.Fatalf("amount = %v", got)
	}
}

func TestExtractFieldsCaseInsensitivePrompt(t *testing.T) {
	t.Parallel()

	fields := ExtractFields("x@y.com", "EXTRACT THE EMAIL")
	if got := fields["email"]; got != "x@y.com" {
		t.Fatalf("email = %v", got)
	}
}

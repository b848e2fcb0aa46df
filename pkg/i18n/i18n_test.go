package i18n

import (
	"reflect"
	"strings"
	"testing"
)

func TestCatalogsAreComplete(t *testing.T) {
	for name, m := range map[string]Messages{"en": messagesEN, "ko": messagesKO} {
		v := reflect.ValueOf(m)
		for i := 0; i < v.NumField(); i++ {
			if v.Field(i).String() == "" {
				t.Errorf("%s: %s is empty", name, v.Type().Field(i).Name)
			}
		}
	}
}

func TestPlaceholdersMatch(t *testing.T) {
	en, ko := reflect.ValueOf(messagesEN), reflect.ValueOf(messagesKO)
	for i := 0; i < en.NumField(); i++ {
		field := en.Type().Field(i).Name
		for _, verb := range []string{"%s", "%d", "%v", "%.2f"} {
			if a, b := strings.Count(en.Field(i).String(), verb), strings.Count(ko.Field(i).String(), verb); a != b {
				t.Errorf("%s: %s appears %d times in en, %d in ko", field, verb, a, b)
			}
		}
	}
}

func TestSetLanguage(t *testing.T) {
	defer SetLanguage(LangEN)

	SetLanguage(LangKO)
	if GetLanguage() != LangKO || M().ShuttingDown != messagesKO.ShuttingDown {
		t.Errorf("ko not applied: %s", M().ShuttingDown)
	}
	SetLanguage("fr")
	if GetLanguage() != LangEN {
		t.Errorf("unknown language should fall back to en, got %s", GetLanguage())
	}
	if got := Get("JobSkipped"); got != messagesEN.JobSkipped {
		t.Errorf("Get(JobSkipped) = %q", got)
	}
	if got := Get("NoSuchKey"); got != "NoSuchKey" {
		t.Errorf("unknown key = %q", got)
	}
}

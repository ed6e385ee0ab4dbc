package graphstore

import "testing"

func TestApplyHolidayBlackoutPassesThroughWhenNotObserved(t *testing.T) {
	ids := []string{"WKDY", "SAT"}
	blackout := map[string]struct{}{"WKDY": {}}
	got := applyHolidayBlackout(ids, false, blackout)
	if len(got) != 2 {
		t.Errorf("expected both service ids to pass through on a non-holiday, got %v", got)
	}
}

func TestApplyHolidayBlackoutDropsBlackedOutServiceIds(t *testing.T) {
	ids := []string{"WKDY", "SAT", "HOL"}
	blackout := map[string]struct{}{"WKDY": {}, "SAT": {}}
	got := applyHolidayBlackout(ids, true, blackout)
	if len(got) != 1 || got[0] != "HOL" {
		t.Errorf("expected only HOL to survive, got %v", got)
	}
}

func TestApplyHolidayBlackoutNoopWithEmptyBlackoutSet(t *testing.T) {
	ids := []string{"WKDY"}
	got := applyHolidayBlackout(ids, true, map[string]struct{}{})
	if len(got) != 1 {
		t.Errorf("expected no filtering with an empty blackout set, got %v", got)
	}
}

func TestCalendarServiceCodeInterningIsStable(t *testing.T) {
	c := NewCalendarService(nil, nil)
	code1, err := c.ServiceCode("WKDY")
	if err != nil {
		t.Fatalf("ServiceCode: %v", err)
	}
	code2, err := c.ServiceCode("WKDY")
	if err != nil {
		t.Fatalf("ServiceCode: %v", err)
	}
	if code1 != code2 {
		t.Errorf("expected the same service id to map to the same code, got %d and %d", code1, code2)
	}

	other, err := c.ServiceCode("SAT")
	if err != nil {
		t.Fatalf("ServiceCode: %v", err)
	}
	if other == code1 {
		t.Error("expected a distinct service id to get a distinct code")
	}

	id, ok := c.ServiceIdForCode(code1)
	if !ok || id != "WKDY" {
		t.Errorf("ServiceIdForCode(%d) = %q, %v, want WKDY, true", code1, id, ok)
	}
}

func TestCalendarServiceBlackoutOnHolidaysRegistersServiceIds(t *testing.T) {
	c := NewCalendarService(nil, nil)
	c.BlackoutOnHolidays("WKDY", "SAT")
	if _, ok := c.blackout["WKDY"]; !ok {
		t.Error("expected WKDY to be registered in the blackout set")
	}
	if _, ok := c.blackout["SUN"]; ok {
		t.Error("did not expect SUN to be registered")
	}
}

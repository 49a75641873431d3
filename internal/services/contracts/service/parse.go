package service

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"detention/internal/services/contracts/domain"
)

// record field aliases seen across backend exports and hand written files
var (
	keysShipper   = []string{"shipper", "shipper_name", "customer", "customer_name"}
	keysActive    = []string{"active", "is_active", "enabled"}
	keysComplete  = []string{"is_complete", "complete"}
	keysRate      = []string{"rate", "detention_rate"}
	keysUnit      = []string{"rate_unit", "unit", "per"}
	keysMax       = []string{"max_charge", "maximum_charge", "cap"}
	keysIncrement = []string{"billing_increment", "increment_minutes", "increment"}
	keysRounding  = []string{"rounding", "round"}
	keysMinimum   = []string{"minimum_minutes", "min_minutes", "minimum"}
	keysLate      = []string{"late_threshold_minutes", "late_threshold"}
	keysApproval  = []string{"requires_approval", "approval_required"}
	keysAuto      = []string{"auto_charge_allowed", "auto_charge"}
	keysAuthNum   = []string{"auth_number_required", "authorization_required"}
)

// parseRecord converts a loosely typed record. Values that are present but
// unreadable are reported as issues; absent values are left for validation
func parseRecord(m map[string]any) (domain.Record, []domain.FieldIssue) {
	var (
		rec    domain.Record
		issues []domain.FieldIssue
	)
	bad := func(field string, v any, want string) {
		issues = append(issues, domain.FieldIssue{Field: field, Message: fmt.Sprintf("%s must be %s, got %v", field, want, v)})
	}

	rec.Shipper = strings.TrimSpace(asString(pick(m, keysShipper)))

	// a record without an explicit flag is active
	rec.Active = true
	if v := pick(m, keysActive); v != nil {
		b, ok := asBool(v)
		if !ok {
			bad("active", v, "a boolean")
		}
		rec.Active = ok && b
	}
	// the backend marks half entered contracts explicitly
	if v := pick(m, keysComplete); v != nil {
		switch b, ok := asBool(v); {
		case !ok:
			bad("is_complete", v, "a boolean")
		case !b:
			issues = append(issues, domain.FieldIssue{Field: "is_complete", Message: "contract is marked incomplete"})
		}
	}

	if v := pick(m, keysRate); v != nil {
		if d, ok := asDecimal(v); ok {
			rec.Rate = &d
		} else {
			bad("rate", v, "a number")
		}
	}
	if v := pick(m, keysUnit); v != nil {
		rec.Unit = unit(asString(v))
	}
	if v := pick(m, keysMax); v != nil {
		if d, ok := asDecimal(v); ok {
			rec.MaxCharge = &d
		} else {
			bad("max_charge", v, "a number")
		}
	}
	intField := func(keys []string, field string, dst *int) {
		if v := pick(m, keys); v != nil {
			n, ok := asInt(v)
			if !ok {
				bad(field, v, "a whole number of minutes")
				return
			}
			*dst = n
		}
	}
	intField(keysIncrement, "billing_increment", &rec.BillingIncrement)
	intField(keysMinimum, "minimum_minutes", &rec.MinimumMinutes)
	if v := pick(m, keysLate); v != nil {
		if n, ok := asInt(v); ok {
			rec.LateThreshold = &n
		} else {
			bad("late_threshold_minutes", v, "a whole number of minutes")
		}
	}
	rec.Rounding = strings.ToLower(strings.TrimSpace(asString(pick(m, keysRounding))))
	if rec.BillingIncrement > 0 && rec.Rounding == "" {
		rec.Rounding = "up"
	}

	flag := func(keys []string, field string, dst *bool) {
		if v := pick(m, keys); v != nil {
			b, ok := asBool(v)
			if !ok {
				bad(field, v, "a boolean")
			}
			*dst = b
		}
	}
	flag(keysApproval, "requires_approval", &rec.RequiresApproval)
	flag(keysAuto, "auto_charge_allowed", &rec.AutoChargeAllowed)
	flag(keysAuthNum, "auth_number_required", &rec.AuthNumberRequired)

	rules, ruleIssues := parseRules(m)
	rec.Rules = rules
	issues = append(issues, ruleIssues...)
	return rec, issues
}

// parseRules accepts either a rules list or flat keys like pickup_live_free_minutes
func parseRules(m map[string]any) ([]domain.RuleRecord, []domain.FieldIssue) {
	var (
		out    []domain.RuleRecord
		issues []domain.FieldIssue
	)
	if list, ok := m["rules"].([]any); ok {
		for i, item := range list {
			rm, ok := item.(map[string]any)
			if !ok {
				issues = append(issues, domain.FieldIssue{Field: fmt.Sprintf("rules[%d]", i), Message: "rule must be an object"})
				continue
			}
			r := domain.RuleRecord{
				Role: role(asString(pick(rm, []string{"role", "stop_type", "stop"}))),
				Load: load(asString(pick(rm, []string{"load_type", "load"}))),
			}
			if v := pick(rm, []string{"eligible"}); v != nil {
				b, ok := asBool(v)
				if !ok {
					issues = append(issues, domain.FieldIssue{Field: fmt.Sprintf("rules[%d].eligible", i), Message: "eligible must be a boolean"})
				}
				r.Eligible = b
			}
			if v := pick(rm, []string{"free_minutes", "free_time", "free"}); v != nil {
				n, ok := asInt(v)
				if !ok {
					issues = append(issues, domain.FieldIssue{Field: fmt.Sprintf("rules[%d].free_minutes", i), Message: "free_minutes must be a whole number"})
				}
				r.FreeMinutes = n
			}
			out = append(out, r)
		}
		return out, issues
	}

	for _, rl := range []string{"pickup", "delivery"} {
		for _, ld := range []string{"live", "drop_hook"} {
			prefix := rl + "_" + ld + "_"
			free, hasFree := m[prefix+"free_minutes"]
			elig, hasElig := m[prefix+"eligible"]
			if !hasFree && !hasElig {
				continue
			}
			r := domain.RuleRecord{Role: rl, Load: ld, Eligible: true}
			if hasElig {
				b, ok := asBool(elig)
				if !ok {
					issues = append(issues, domain.FieldIssue{Field: prefix + "eligible", Message: prefix + "eligible must be a boolean"})
				}
				r.Eligible = b
			}
			if hasFree {
				n, ok := asInt(free)
				if !ok {
					issues = append(issues, domain.FieldIssue{Field: prefix + "free_minutes", Message: prefix + "free_minutes must be a whole number"})
				}
				r.FreeMinutes = n
			}
			out = append(out, r)
		}
	}
	return out, issues
}

func pick(m map[string]any, keys []string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
				continue
			}
			return v
		}
	}
	return nil
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func asBool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case float64:
		return t != 0, true
	case int:
		return t != 0, true
	case json.Number:
		f, err := t.Float64()
		return f != 0, err == nil
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "y", "1", "on", "active", "enabled":
			return true, true
		case "false", "no", "n", "0", "off", "inactive", "disabled":
			return false, true
		}
	}
	return false, false
}

func asDecimal(v any) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case float64:
		return decimal.NewFromFloat(t), true
	case int:
		return decimal.NewFromInt(int64(t)), true
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		return d, err == nil
	case string:
		s := strings.NewReplacer("$", "", ",", "", " ", "").Replace(t)
		d, err := decimal.NewFromString(s)
		return d, err == nil
	}
	return decimal.Decimal{}, false
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case float64:
		if t != float64(int(t)) {
			return 0, false
		}
		return int(t), true
	case json.Number:
		n, err := t.Int64()
		return int(n), err == nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		return n, err == nil
	}
	return 0, false
}

func unit(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hour", "hr", "hourly", "h", "per_hour":
		return "hour"
	case "minute", "min", "m", "per_minute":
		return "minute"
	}
	return strings.ToLower(strings.TrimSpace(s))
}

func role(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pickup", "pu", "origin", "shipper":
		return "pickup"
	case "delivery", "del", "destination", "consignee":
		return "delivery"
	}
	return strings.ToLower(strings.TrimSpace(s))
}

func load(s string) string {
	switch strings.ToLower(strings.NewReplacer("-", "", "_", "", " ", "", "&", "").Replace(s)) {
	case "live":
		return "live"
	case "drophook", "drop", "dropandhook", "dh":
		return "drop_hook"
	}
	return strings.ToLower(strings.TrimSpace(s))
}

package module

import (
	"detention/internal/platform/config"
)

// Options holds pipeline and rule settings
type Options struct {
	PickupCode           string
	DeliveryCode         string
	LateThresholdMinutes int
	Comments             bool
	UndoCapacity         int
	DryRun               bool
}

// FromConfig reads DETENTION_RULES_* plus the batch dry-run switch
func FromConfig(cfg config.Conf) Options {
	r := cfg.Prefix("DETENTION_RULES_")
	return Options{
		PickupCode:           r.MayString("PICKUP_CODE", "DETPU"),
		DeliveryCode:         r.MayString("DELIVERY_CODE", "DETDL"),
		LateThresholdMinutes: r.MayInt("LATE_THRESHOLD", 0),
		Comments:             r.MayBool("COMMENTS", true),
		UndoCapacity:         r.MayInt("UNDO_CAPACITY", 100),
		DryRun:               cfg.Prefix("DETENTION_BATCH_").MayBool("DRY_RUN", false),
	}
}

package ehr

import (
	"context"

	"github.com/harborhealth/platform/internal/shared/events"
)

// BridgeEvents republishes adapter admission and discharge events onto
// the platform event bus so downstream subscribers, the audit log
// included, see hospital activity alongside domain events.
func BridgeEvents(ctx context.Context, adapter Adapter, bus *events.Bus) error {
	err := adapter.SubscribeAdmissions(ctx, func(event AdmissionEvent) {
		e := events.NewEvent("ehr.admission", "ehr", event).WithActor("", "system")
		bus.Publish(ctx, e)
	})
	if err != nil {
		return err
	}

	return adapter.SubscribeDischarges(ctx, func(event DischargeEvent) {
		e := events.NewEvent("ehr.discharge", "ehr", event).WithActor("", "system")
		bus.Publish(ctx, e)
	})
}

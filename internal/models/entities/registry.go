package entities

import "fmt"

// Entity type identifiers, used in queue rows, checkpoints, and URLs
const (
	EntityTypeMember           = "members"
	EntityTypeYogaClass        = "classes"
	EntityTypeBooking          = "bookings"
	EntityTypeSubscription     = "subscriptions"
	EntityTypePayment          = "payments"
	EntityTypeAttendanceRecord = "attendance"
	EntityTypeStudioOwner      = "owners"
)

var prototypes = map[string]func() Entity{
	EntityTypeMember:           func() Entity { return &Member{} },
	EntityTypeYogaClass:        func() Entity { return &YogaClass{} },
	EntityTypeBooking:          func() Entity { return &Booking{} },
	EntityTypeSubscription:     func() Entity { return &Subscription{} },
	EntityTypePayment:          func() Entity { return &Payment{} },
	EntityTypeAttendanceRecord: func() Entity { return &AttendanceRecord{} },
	EntityTypeStudioOwner:      func() Entity { return &StudioOwner{} },
}

// typeOrder keeps iteration deterministic (migrations, pull loop)
var typeOrder = []string{
	EntityTypeStudioOwner,
	EntityTypeMember,
	EntityTypeYogaClass,
	EntityTypeBooking,
	EntityTypeSubscription,
	EntityTypePayment,
	EntityTypeAttendanceRecord,
}

// Prototype returns a fresh zero value for the named entity type
func Prototype(entityType string) (Entity, error) {
	fn, ok := prototypes[entityType]
	if !ok {
		return nil, fmt.Errorf("unknown entity type %q", entityType)
	}
	return fn(), nil
}

// AllTypes returns every registered entity type name in a stable order
func AllTypes() []string {
	out := make([]string, len(typeOrder))
	copy(out, typeOrder)
	return out
}

// AllPrototypes returns one zero value per registered type, in stable order
func AllPrototypes() []Entity {
	out := make([]Entity, 0, len(typeOrder))
	for _, t := range typeOrder {
		out = append(out, prototypes[t]())
	}
	return out
}

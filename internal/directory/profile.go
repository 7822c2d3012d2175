package directory

import (
	"context"
	"log/slog"

	"kiosk/internal/identifier"
	"kiosk/internal/logging"
	"kiosk/internal/services"
)

// Profile is the resolved view of a member used for greetings.
type Profile struct {
	MemberID    string
	DisplayName string
	AvatarURL   string
}

// Personalized reports whether the profile carries a name to greet.
func (p Profile) Personalized() bool {
	return p.DisplayName != ""
}

// Anonymous is the degraded profile for an identifier the directory does not
// know. The identifier itself stands in for the member id.
func Anonymous(id identifier.ID) Profile {
	return Profile{MemberID: string(id)}
}

// Directory looks up members by identifier. A miss is (Profile{}, false, nil).
type Directory interface {
	Lookup(ctx context.Context, id identifier.ID) (Profile, bool, error)
}

// Resolve never fails: a miss or a lookup error degrades to Anonymous(id) so
// the identification is still toggled and greeted.
func Resolve(ctx context.Context, d Directory, id identifier.ID, logger *slog.Logger) Profile {
	if d == nil {
		return Anonymous(id)
	}
	profile, found, err := d.Lookup(ctx, id)
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, logger), "directory lookup failed; greeting anonymously", "directory_lookup_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorKind, services.Classify(err)),
			logging.String(logging.FieldErrorHint, "check the directory database with 'kiosk member list'"),
			logging.String(logging.FieldImpact, "member receives the anonymous greeting"),
		)
		return Anonymous(id)
	}
	if !found {
		if logger != nil {
			logging.WithContext(ctx, logger).Info("identifier not in directory",
				logging.String(logging.FieldEventType, "directory_miss"),
				logging.String("kind", id.Kind().String()),
			)
		}
		return Anonymous(id)
	}
	return profile
}

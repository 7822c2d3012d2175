package greeting

import (
	"strings"

	"kiosk/internal/directory"
	"kiosk/internal/presence"
)

// AnonymousSubject is the Key subject for greetings without a name.
const AnonymousSubject = "anonymous"

const assetExt = ".mp3"

// Key identifies one greeting asset.
type Key struct {
	Subject      string
	Action       presence.Action
	Personalized bool
}

// KeyFor derives the asset key for a resolved profile and toggle action.
func KeyFor(profile directory.Profile, action presence.Action) Key {
	if !profile.Personalized() {
		return Key{Subject: AnonymousSubject, Action: action}
	}
	return Key{Subject: profile.MemberID, Action: action, Personalized: true}
}

// FileName returns the asset file name relative to the audio directory.
func (k Key) FileName() string {
	if !k.Personalized {
		return string(k.Action) + assetExt
	}
	return safeSubject(k.Subject) + "_" + string(k.Action) + assetExt
}

func (k Key) String() string {
	return strings.TrimSuffix(k.FileName(), assetExt)
}

// safeSubject keeps member ids usable as file name prefixes.
func safeSubject(subject string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\' || r == 0:
			return '_'
		default:
			return r
		}
	}, strings.TrimLeft(subject, "."))
}

// Phrases holds the spoken templates. Personal templates substitute {name}.
type Phrases struct {
	AnonymousEnter string
	AnonymousExit  string
	PersonalEnter  string
	PersonalExit   string
}

// Text renders the phrase for a profile and action.
func (p Phrases) Text(profile directory.Profile, action presence.Action) string {
	if !profile.Personalized() {
		if action == presence.ActionEnter {
			return p.AnonymousEnter
		}
		return p.AnonymousExit
	}
	template := p.PersonalExit
	if action == presence.ActionEnter {
		template = p.PersonalEnter
	}
	return strings.ReplaceAll(template, "{name}", profile.DisplayName)
}

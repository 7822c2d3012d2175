// Package greeting turns a toggle into spoken audio.
//
// Greeting assets are keyed by (subject, action, personalized) and stored as
// MP3 files under the audio directory: "{action}.mp3" for the anonymous
// phrases and "{memberId}_{action}.mp3" for personalized ones. Assets are
// synthesized on first use, written atomically, and reused forever after; a
// cache hit never calls the synthesizer.
//
// Dispatcher.Announce blocks until playback finishes so that greetings from
// consecutive identifications never overlap.
package greeting

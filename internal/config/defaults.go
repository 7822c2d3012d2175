package config

const (
	defaultDataDir               = "./data"
	defaultAudioDir              = "./audio"
	defaultLogDir                = "./data/logs"
	defaultStateFileName         = "presence.json"
	defaultDirectoryDBName       = "data.db"
	defaultHistoryDBName         = "history.db"
	defaultAPIBind               = "127.0.0.1:7491"
	defaultReaderBinary          = "nfc-poll"
	defaultReaderReadTimeout     = 300
	defaultReaderRetryDelayMS    = 500
	defaultReaderVendorID        = "054c"
	defaultReaderProductID       = "06c1"
	defaultTouchSound            = "./se/touch.wav"
	defaultGreetingLocale        = "ja"
	defaultSynthesizer           = "http"
	defaultTTSURL                = "https://translate.google.com/translate_tts?ie=UTF-8&client=tw-ob&tl={lang}&q={text}"
	defaultPlayerBinary          = "mpg123"
	defaultSynthesisTimeout      = 15
	defaultPlaybackTimeout       = 30
	defaultAnonymousEnter        = "いらっしゃいませ"
	defaultAnonymousExit         = "ありがとうございました"
	defaultPersonalEnter         = "{name}さん，こんにちは．"
	defaultPersonalExit          = "{name}さん，お疲れ様でした．"
	defaultNotifyRequestTimeout  = 10
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultLogRetentionDays      = 30
	synthesizerHTTP              = "http"
	synthesizerCommand           = "command"
	envTestMode                  = "KIOSK_TEST"
	envNtfyTopic                 = "KIOSK_NTFY_TOPIC"
	envAPIBind                   = "KIOSK_API_BIND"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:  defaultDataDir,
			AudioDir: defaultAudioDir,
			LogDir:   defaultLogDir,
			APIBind:  defaultAPIBind,
		},
		Reader: Reader{
			Enabled:      true,
			Command:      []string{defaultReaderBinary},
			ReadTimeout:  defaultReaderReadTimeout,
			RetryDelayMS: defaultReaderRetryDelayMS,
			Hotplug:      true,
			VendorID:     defaultReaderVendorID,
			ProductID:    defaultReaderProductID,
			TouchSound:   defaultTouchSound,
		},
		Console: Console{
			Enabled: true,
		},
		Greeting: Greeting{
			Locale:           defaultGreetingLocale,
			Synthesizer:      defaultSynthesizer,
			TTSURL:           defaultTTSURL,
			PlayerCommand:    []string{defaultPlayerBinary, "-q"},
			SynthesisTimeout: defaultSynthesisTimeout,
			PlaybackTimeout:  defaultPlaybackTimeout,
			AnonymousEnter:   defaultAnonymousEnter,
			AnonymousExit:    defaultAnonymousExit,
			PersonalEnter:    defaultPersonalEnter,
			PersonalExit:     defaultPersonalExit,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			StoreFailures:  true,
			ReaderFaults:   true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}

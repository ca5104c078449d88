package runner

import (
	"errors"
	"fmt"
	"strings"
)

// IntentKind names one user action.
type IntentKind string

const (
	IntentSend            IntentKind = "send"
	IntentSetInput        IntentKind = "input"
	IntentRecord          IntentKind = "record"
	IntentSpeak           IntentKind = "speak"
	IntentStopSpeech      IntentKind = "stop"
	IntentImage           IntentKind = "image"
	IntentNewSession      IntentKind = "new"
	IntentSaveSession     IntentKind = "save"
	IntentListSessions    IntentKind = "sessions"
	IntentLoadSession     IntentKind = "load"
	IntentDeleteSession   IntentKind = "delete"
	IntentSetModel        IntentKind = "model"
	IntentSetSystemPrompt IntentKind = "system"
	IntentSetProxyURL     IntentKind = "proxy"
	IntentSetTTSProvider  IntentKind = "tts"
	IntentSetTTSURL       IntentKind = "ttsurl"
	IntentSetAutoSpeak    IntentKind = "autospeak"
	IntentSetImageSize    IntentKind = "size"
	IntentCheckHealth     IntentKind = "health"
)

var (
	ErrUnknownCommand = errors.New("runner: unknown command")
	ErrMissingArg     = errors.New("runner: command needs an argument")
)

// Intent is one user action with its argument: the message text, a session
// id or a setting value.
type Intent struct {
	Kind IntentKind
	Arg  string
}

// argRequired lists the kinds that make no sense without an argument.
// An empty proxy or TTS URL clears the setting.
var argRequired = map[IntentKind]bool{
	IntentLoadSession:    true,
	IntentDeleteSession:  true,
	IntentSetModel:       true,
	IntentSetAutoSpeak:   true,
	IntentSetImageSize:   true,
	IntentSetTTSProvider: true,
}

var commandKinds = map[string]IntentKind{}

func init() {
	for _, k := range []IntentKind{
		IntentRecord, IntentSpeak, IntentStopSpeech, IntentImage,
		IntentNewSession, IntentSaveSession, IntentListSessions,
		IntentLoadSession, IntentDeleteSession, IntentSetModel,
		IntentSetSystemPrompt, IntentSetProxyURL, IntentSetTTSProvider,
		IntentSetTTSURL, IntentSetAutoSpeak, IntentSetImageSize,
		IntentCheckHealth,
	} {
		commandKinds[string(k)] = k
	}
}

// ParseIntent validates a kind received from a remote UI.
func ParseIntent(kind, arg string) (Intent, error) {
	k := IntentKind(strings.ToLower(strings.TrimSpace(kind)))
	if _, ok := commandKinds[string(k)]; !ok && k != IntentSend && k != IntentSetInput {
		return Intent{}, fmt.Errorf("%w: %q", ErrUnknownCommand, kind)
	}
	arg = strings.TrimSpace(arg)
	if argRequired[k] && arg == "" {
		return Intent{}, fmt.Errorf("%w: %s", ErrMissingArg, k)
	}
	return Intent{Kind: k, Arg: arg}, nil
}

// ParseCommand turns a line typed in the input box into an intent. Lines
// starting with "/" are commands ("/load <id>", "/model gpt-4o"); "//" escapes
// a literal leading slash. Everything else is a message to send.
func ParseCommand(line string) (Intent, error) {
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "//") {
		return Intent{Kind: IntentSend, Arg: trimmed[1:]}, nil
	}
	if !strings.HasPrefix(trimmed, "/") {
		return Intent{Kind: IntentSend, Arg: trimmed}, nil
	}

	name, arg, _ := strings.Cut(trimmed[1:], " ")
	kind, ok := commandKinds[strings.ToLower(name)]
	if !ok {
		return Intent{}, fmt.Errorf("%w: /%s", ErrUnknownCommand, name)
	}
	return ParseIntent(string(kind), arg)
}

// CommandHelp is the one-line summary shown for unknown commands.
const CommandHelp = "Commands: /new /save /sessions /load <id> /delete <id> /model <name> /system <prompt> " +
	"/proxy <url> /tts local|remote /ttsurl <url> /autospeak on|off /size <WxH> /image /speak /stop /record /health"

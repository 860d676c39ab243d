package telegraph

import (
	"regexp"
	"strings"
)

// route is the handler an inbound event is dispatched to.
type route int

const (
	routeAction  route = iota // card submit or free-text action
	routeWelcome              // greeting or first message in the conversation
	routeFile                 // uploaded file
	routeChange               // "change" command
	routeEcho                 // anything else
)

func (r route) String() string {
	switch r {
	case routeAction:
		return "action"
	case routeWelcome:
		return "welcome"
	case routeFile:
		return "file"
	case routeChange:
		return "change"
	default:
		return "echo"
	}
}

var (
	// mentionRe matches Slack <@U123> and Discord <@123> / <@!123> mentions.
	mentionRe = regexp.MustCompile(`<@!?[A-Za-z0-9]+>`)

	greetingRe = regexp.MustCompile(`(?i)^(hi|hello|hey|hiya|howdy|good\s+(morning|afternoon|evening)|start|/start)\b`)

	docActionRe = regexp.MustCompile(`(?i)^(approve|reject|summarize|summarise|select|show|ask)\s+(DOC-\d+)\b\s*(.*)$`)

	listRe = regexp.MustCompile(`(?i)^(list|pending|documents|docs)$`)

	changeRe = regexp.MustCompile(`(?i)^change\b\s*(DOC-\d+)?`)
)

// textVerbs maps free-text commands to action verbs.
var textVerbs = map[string]string{
	"approve":   ActionApprove,
	"reject":    ActionReject,
	"summarize": ActionSelect,
	"summarise": ActionSelect,
	"select":    ActionSelect,
	"show":      ActionSelect,
	"ask":       ActionAsk,
}

// classify picks the handler for ev, in precedence order: card actions,
// free-text actions, greeting or first message, uploaded file, change
// command, echo. The returned Action is set only for routeAction.
func classify(ev InboundEvent, welcomed bool) (route, *Action) {
	if ev.Action != nil && ev.Action.Verb != "" {
		return routeAction, ev.Action
	}
	text := cleanText(ev.Text)
	if a := parseTextAction(text); a != nil {
		return routeAction, a
	}
	if isGreeting(text) || !welcomed {
		return routeWelcome, nil
	}
	if len(ev.Attachments) > 0 {
		return routeFile, nil
	}
	if isChangeCommand(text) {
		return routeChange, nil
	}
	return routeEcho, nil
}

// cleanText strips bot mentions and surrounding whitespace.
func cleanText(text string) string {
	return strings.TrimSpace(mentionRe.ReplaceAllString(text, ""))
}

// parseTextAction recognizes "approve DOC-001", "ask DOC-001 <question>",
// "list" and friends. It returns nil for anything else.
func parseTextAction(text string) *Action {
	if listRe.MatchString(text) {
		return &Action{Verb: ActionList}
	}
	m := docActionRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	a := &Action{
		Verb:  textVerbs[strings.ToLower(m[1])],
		DocID: strings.ToUpper(m[2]),
	}
	if a.Verb == ActionAsk {
		a.Question = strings.TrimSpace(m[3])
	}
	return a
}

func isGreeting(text string) bool {
	return greetingRe.MatchString(text)
}

func isChangeCommand(text string) bool {
	return changeRe.MatchString(text)
}

// changeTarget returns the document id named by a change command, if any.
func changeTarget(text string) string {
	m := changeRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.ToUpper(m[1])
}

// truncate returns s truncated to maxLen runes with "..." appended if needed.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}

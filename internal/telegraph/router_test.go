package telegraph

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		ev       InboundEvent
		welcomed bool
		want     route
	}{
		{"card action", InboundEvent{Text: "hello", Action: &Action{Verb: ActionList}}, true, routeAction},
		{"empty verb ignored", InboundEvent{Text: "thanks", Action: &Action{}}, true, routeEcho},
		{"text action beats first message", InboundEvent{Text: "approve DOC-001"}, false, routeAction},
		{"greeting", InboundEvent{Text: "hey there"}, true, routeWelcome},
		{"mention greeting", InboundEvent{Text: "<@U0BOT> hello"}, true, routeWelcome},
		{"first message", InboundEvent{Text: "anything"}, false, routeWelcome},
		{"file", InboundEvent{Attachments: []Attachment{{Name: "a.pdf"}}}, true, routeFile},
		{"change", InboundEvent{Text: "Change DOC-002 please"}, true, routeChange},
		{"echo", InboundEvent{Text: "history"}, true, routeEcho},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := classify(tt.ev, tt.welcomed)
			if got != tt.want {
				t.Errorf("classify = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseTextAction(t *testing.T) {
	tests := []struct {
		text     string
		verb     string
		docID    string
		question string
	}{
		{"approve DOC-001", ActionApprove, "DOC-001", ""},
		{"Reject doc-12", ActionReject, "DOC-12", ""},
		{"summarize DOC-003", ActionSelect, "DOC-003", ""},
		{"show DOC-003", ActionSelect, "DOC-003", ""},
		{"ask DOC-004 what is the scope?", ActionAsk, "DOC-004", "what is the scope?"},
		{"LIST", ActionList, "", ""},
		{"pending", ActionList, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			a := parseTextAction(tt.text)
			if a == nil {
				t.Fatal("expected action")
			}
			if a.Verb != tt.verb || a.DocID != tt.docID || a.Question != tt.question {
				t.Errorf("action = %+v", a)
			}
		})
	}

	for _, text := range []string{"", "approve", "approve it", "please approve DOC-001", "listing"} {
		if a := parseTextAction(text); a != nil {
			t.Errorf("parseTextAction(%q) = %+v, want nil", text, a)
		}
	}
}

func TestNewAction(t *testing.T) {
	if a := NewAction(ActionApprove, "DOC-001"); a.DocID != "DOC-001" || a.Value != "" {
		t.Errorf("approve = %+v", a)
	}
	if a := NewAction(ActionConfirmFile, "x.pdf"); a.Value != "x.pdf" || a.DocID != "" {
		t.Errorf("confirm = %+v", a)
	}
}

func TestChangeTarget(t *testing.T) {
	if got := changeTarget("change doc-5"); got != "DOC-5" {
		t.Errorf("changeTarget = %q", got)
	}
	if got := changeTarget("change"); got != "" {
		t.Errorf("changeTarget = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("hello", 10); got != "hello" {
		t.Errorf("truncate short = %q", got)
	}
	if got := truncate("héllo wörld", 5); got != "héllo..." {
		t.Errorf("truncate long = %q", got)
	}
}

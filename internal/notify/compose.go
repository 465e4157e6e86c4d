package notify

import (
	"fmt"
	"strings"

	"github.com/kalambet/agentmesh/internal/storage"
)

type envelope struct {
	opp  storage.Opportunity
	room storage.Room
	a, b storage.Person
	url  string
}

// displayName falls back from name to email to "Someone".
func displayName(p storage.Person) string {
	if n := strings.TrimSpace(p.Name); n != "" {
		return n
	}
	if e := strings.TrimSpace(p.Email); e != "" {
		return e
	}
	return "Someone"
}

// compose builds the email for one side. It reports false when that side
// has no email address.
func compose(env envelope, event storage.NotifyEvent, side storage.Side) (Message, bool) {
	me, them := env.a, env.b
	intro, question := env.opp.IntroA, env.opp.QuestionA
	if side == storage.SideB {
		me, them = env.b, env.a
		intro, question = env.opp.IntroB, env.opp.QuestionB
	}
	to := strings.TrimSpace(me.Email)
	if to == "" {
		return Message{}, false
	}

	var sections []string
	var subject string
	switch event {
	case storage.NotifyProposal:
		subject = fmt.Sprintf("Agent Mesh: potential match (%s)", displayName(them))
		sections = []string{
			"Potential match in room " + env.room.Code,
			"Other person: " + displayName(them),
			labeled("Why: ", env.opp.Rationale),
			labeled("Intro drafted for you:\n", intro),
			labeled("Question for you:\n", question),
		}
	case storage.NotifyAccepted:
		subject = fmt.Sprintf("Agent Mesh: accepted match (%s)", displayName(them))
		sections = []string{
			"Accepted match in room " + env.room.Code,
			fmt.Sprintf("You: %s <%s>", displayName(me), to),
			contact("Them: ", them),
			labeled("Suggested intro you can send:\n", intro),
		}
	}
	sections = append(sections, "Open: "+env.url)

	var kept []string
	for _, s := range sections {
		if s != "" {
			kept = append(kept, s)
		}
	}
	return Message{To: to, Subject: subject, Text: strings.Join(kept, "\n\n")}, true
}

func labeled(label, value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	return label + strings.TrimSpace(value)
}

func contact(label string, p storage.Person) string {
	if e := strings.TrimSpace(p.Email); e != "" {
		return fmt.Sprintf("%s%s <%s>", label, displayName(p), e)
	}
	return label + displayName(p)
}

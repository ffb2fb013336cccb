package reminders

import (
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/text/feature/plural"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Message keys. The English text doubles as the key.
const (
	keyTitle       = "Task Reminder"
	keyDueToday    = "The task \"%s\" is due today"
	keyDueTomorrow = "The task \"%s\" is due tomorrow"
	keyDueInHours  = "The task \"%s\" is due in %d hours"
	keyOverdue     = "The task \"%s\" is overdue"
)

var (
	supportedLanguages = []language.Tag{language.English, language.BrazilianPortuguese}
	languageMatcher    = language.NewMatcher(supportedLanguages)

	catalogOnce sync.Once
	messages    catalog.Catalog
)

func reminderCatalog() catalog.Catalog {
	catalogOnce.Do(func() {
		built, err := buildReminderCatalog()
		if err != nil {
			panic(err)
		}
		messages = built
	})
	return messages
}

func buildReminderCatalog() (catalog.Catalog, error) {
	b := catalog.NewBuilder(catalog.Fallback(language.English))

	var errs error
	set := func(tag language.Tag, key string, msg ...catalog.Message) {
		if err := b.Set(tag, key, msg...); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("reminders: catalog %s %q: %w", tag, key, err))
		}
	}

	set(language.English, keyTitle, catalog.String("Task Reminder"))
	set(language.English, keyDueToday, catalog.String("The task \"%s\" is due today"))
	set(language.English, keyDueTomorrow, catalog.String("The task \"%s\" is due tomorrow"))
	set(language.English, keyDueInHours, plural.Selectf(2, "%d",
		"=1", "The task \"%[1]s\" is due in %[2]d hour",
		"other", "The task \"%[1]s\" is due in %[2]d hours",
	))
	set(language.English, keyOverdue, catalog.String("The task \"%s\" is overdue"))

	set(language.BrazilianPortuguese, keyTitle, catalog.String("Lembrete de Tarefa"))
	set(language.BrazilianPortuguese, keyDueToday, catalog.String("A tarefa \"%s\" vence hoje"))
	set(language.BrazilianPortuguese, keyDueTomorrow, catalog.String("A tarefa \"%s\" vence amanhã"))
	set(language.BrazilianPortuguese, keyDueInHours, plural.Selectf(2, "%d",
		"=1", "A tarefa \"%[1]s\" vence em %[2]d hora",
		"other", "A tarefa \"%[1]s\" vence em %[2]d horas",
	))
	set(language.BrazilianPortuguese, keyOverdue, catalog.String("A tarefa \"%s\" está atrasada"))

	if errs != nil {
		return nil, errs
	}
	return b, nil
}

// Messages renders reminder text in one language.
type Messages struct {
	tag language.Tag
}

// NewMessages picks the closest supported language for locale. Unknown locales use English.
func NewMessages(locale string) *Messages {
	tag := language.English
	if locale != "" {
		if requested, err := language.Parse(locale); err == nil {
			_, index, confidence := languageMatcher.Match(requested)
			if confidence != language.No {
				tag = supportedLanguages[index]
			}
		}
	}
	return &Messages{tag: tag}
}

// Language returns the BCP 47 tag in use.
func (m *Messages) Language() string {
	return m.tag.String()
}

// Title returns the reminder notification title.
func (m *Messages) Title() string {
	return m.printer().Sprintf(keyTitle)
}

// Body returns the reminder message for a decision about the named task.
func (m *Messages) Body(decision Decision, taskTitle string) string {
	p := m.printer()
	switch decision.Kind {
	case KindDueToday:
		return p.Sprintf(keyDueToday, taskTitle)
	case KindDueTomorrow:
		return p.Sprintf(keyDueTomorrow, taskTitle)
	case KindDueInHours:
		return p.Sprintf(keyDueInHours, taskTitle, decision.Hours)
	case KindOverdue:
		return p.Sprintf(keyOverdue, taskTitle)
	default:
		return ""
	}
}

// Printers are cheap and not shared across goroutines.
func (m *Messages) printer() *message.Printer {
	return message.NewPrinter(m.tag, message.Catalog(reminderCatalog()))
}

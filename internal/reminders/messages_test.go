package reminders

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMessagesEnglish(t *testing.T) {
	m := NewMessages("en")

	require.Equal(t, "en", m.Language())
	require.Equal(t, "Task Reminder", m.Title())
	require.Equal(t, `The task "Send proposal" is due today`, m.Body(Decision{Kind: KindDueToday}, "Send proposal"))
	require.Equal(t, `The task "Send proposal" is due tomorrow`, m.Body(Decision{Kind: KindDueTomorrow}, "Send proposal"))
	require.Equal(t, `The task "Send proposal" is due in 5 hours`, m.Body(Decision{Kind: KindDueInHours, Hours: 5}, "Send proposal"))
	require.Equal(t, `The task "Send proposal" is due in 1 hour`, m.Body(Decision{Kind: KindDueInHours, Hours: 1}, "Send proposal"))
	require.Equal(t, `The task "Send proposal" is overdue`, m.Body(Decision{Kind: KindOverdue}, "Send proposal"))
	require.Empty(t, m.Body(Decision{Kind: KindNone}, "Send proposal"))
}

func TestMessagesBrazilianPortuguese(t *testing.T) {
	m := NewMessages("pt-BR")

	require.Equal(t, "pt-BR", m.Language())
	require.Equal(t, "Lembrete de Tarefa", m.Title())
	require.Equal(t, `A tarefa "Enviar proposta" vence hoje`, m.Body(Decision{Kind: KindDueToday}, "Enviar proposta"))
	require.Equal(t, `A tarefa "Enviar proposta" vence amanhã`, m.Body(Decision{Kind: KindDueTomorrow}, "Enviar proposta"))
	require.Equal(t, `A tarefa "Enviar proposta" está atrasada`, m.Body(Decision{Kind: KindOverdue}, "Enviar proposta"))
}

func TestMessagesUnknownLocaleFallsBackToEnglish(t *testing.T) {
	for _, locale := range []string{"", "not a locale!", "ja"} {
		m := NewMessages(locale)
		require.Equal(t, "Task Reminder", m.Title(), locale)
	}
}

func TestReminderCatalogBuildsCleanly(t *testing.T) {
	built, err := buildReminderCatalog()
	require.NoError(t, err)
	require.NotNil(t, built)
}

func TestMessagesRenderEveryKindInEveryLanguage(t *testing.T) {
	cases := []struct {
		locale   string
		decision Decision
		want     string
	}{
		{"en", Decision{Kind: KindDueToday}, `The task "Pay rent" is due today`},
		{"en", Decision{Kind: KindDueTomorrow}, `The task "Pay rent" is due tomorrow`},
		{"en", Decision{Kind: KindDueInHours, Hours: 1}, `The task "Pay rent" is due in 1 hour`},
		{"en", Decision{Kind: KindDueInHours, Hours: 2}, `The task "Pay rent" is due in 2 hours`},
		{"en", Decision{Kind: KindDueInHours, Hours: 23}, `The task "Pay rent" is due in 23 hours`},
		{"en", Decision{Kind: KindOverdue}, `The task "Pay rent" is overdue`},
		{"pt-BR", Decision{Kind: KindDueToday}, `A tarefa "Pay rent" vence hoje`},
		{"pt-BR", Decision{Kind: KindDueTomorrow}, `A tarefa "Pay rent" vence amanhã`},
		{"pt-BR", Decision{Kind: KindDueInHours, Hours: 1}, `A tarefa "Pay rent" vence em 1 hora`},
		{"pt-BR", Decision{Kind: KindDueInHours, Hours: 2}, `A tarefa "Pay rent" vence em 2 horas`},
		{"pt-BR", Decision{Kind: KindDueInHours, Hours: 23}, `A tarefa "Pay rent" vence em 23 horas`},
		{"pt-BR", Decision{Kind: KindOverdue}, `A tarefa "Pay rent" está atrasada`},
	}

	for _, tc := range cases {
		m := NewMessages(tc.locale)
		require.Equal(t, tc.want, m.Body(tc.decision, "Pay rent"), "%s %s %d", tc.locale, tc.decision.Kind, tc.decision.Hours)
	}
}

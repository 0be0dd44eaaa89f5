package game_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/cahbot/internal/deck"
	"github.com/victornm/cahbot/internal/domain"
	"github.com/victornm/cahbot/internal/errors"
	"github.com/victornm/cahbot/internal/game"
)

const channel = "#cah"

func catalogN(nq, na int) *deck.Catalog {
	c := &deck.Catalog{}
	for i := 0; i < nq; i++ {
		c.Questions = append(c.Questions, fmt.Sprintf("question %d", i))
	}
	for i := 0; i < na; i++ {
		c.Answers = append(c.Answers, fmt.Sprintf("answer %d", i))
	}
	return c
}

// startedSession joins the given players (the first is host) and starts the
// game, leaving the session in the QUESTION phase with the host as judge.
func startedSession(t *testing.T, rules game.Rules, names ...string) *game.Session {
	t.Helper()

	s := game.NewSession(channel, names[0], catalogN(20, 100), rules)
	for _, n := range names[1:] {
		s.Join(n)
	}

	_, err := s.Start(names[0])
	require.NoError(t, err)
	require.Equal(t, domain.PhaseQuestion, s.Phase)
	return s
}

func player(t *testing.T, s *game.Session, name string) *domain.Player {
	t.Helper()
	for _, p := range s.Players {
		if p.Name == name {
			return p
		}
	}
	t.Fatalf("player %s not in session", name)
	return nil
}

// revealedIndexOf finds the post-shuffle index of the card nick played this
// round. Ownership is matched by card ID.
func revealedIndexOf(t *testing.T, s *game.Session, nick string) int {
	t.Helper()
	p := player(t, s, nick)
	for i, c := range s.RoundAnswers {
		for _, played := range p.PlayedAnswers {
			if c.ID == played.ID {
				return i
			}
		}
	}
	t.Fatalf("no round answer owned by %s", nick)
	return -1
}

func texts(msgs []domain.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Text)
	}
	return out
}

func TestSession_JoinAndStart(t *testing.T) {
	s := game.NewSession(channel, "alice", catalogN(20, 100), game.Rules{})

	require.Len(t, s.Players, 1)
	assert.True(t, s.Players[0].Host, "creator should be host")

	s.Join("bob")
	msgs := s.Join("bob")
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Text, "already joined", "duplicate join should get its own ack")
	require.Len(t, s.Players, 2)

	// Two players is below the minimum of three.
	msgs, err := s.Start("alice")
	require.NoError(t, err)
	assert.Contains(t, msgs[0].Text, "minimum amount of players")
	assert.Equal(t, domain.PhaseNew, s.Phase)

	s.Join("carol")
	msgs, err = s.Start("alice")
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseQuestion, s.Phase)
	assert.Equal(t, "alice", s.Judge().Name)
	assert.Contains(t, msgs[0].Text, "card czar")

	for _, p := range s.Players {
		assert.Len(t, p.Hand, game.DefaultHandSize)
	}

	// Joining after the start is refused.
	msgs = s.Join("dave")
	assert.Contains(t, msgs[0].Text, "too late")
	assert.Len(t, s.Players, 3)
}

func TestSession_StartTwiceDoesNotRedeal(t *testing.T) {
	s := startedSession(t, game.Rules{}, "alice", "bob", "carol")

	msgs, err := s.Start("alice")
	require.NoError(t, err)
	assert.Contains(t, msgs[0].Text, "already started")

	for _, p := range s.Players {
		assert.Len(t, p.Hand, game.DefaultHandSize, "second start must not deal again")
	}
}

func TestSession_FullRound(t *testing.T) {
	s := startedSession(t, game.Rules{}, "alice", "bob", "carol")

	// Only the judge can open the round.
	msgs, hands, err := s.PlayQuestion("bob")
	require.NoError(t, err)
	require.Empty(t, hands)
	require.Len(t, msgs, 1)
	assert.Equal(t, "bob", msgs[0].Target, "rejection goes to the actor privately")

	msgs, hands, err = s.PlayQuestion("alice")
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseAnswers, s.Phase)
	assert.Equal(t, 1, s.Round)
	require.Len(t, msgs, 2)
	assert.Equal(t, channel, msgs[0].Target)

	// Hands go to every non-judge player, each as its own delivery.
	require.Len(t, hands, 2)
	recipients := []string{hands[0].Nick, hands[1].Nick}
	assert.ElementsMatch(t, []string{"bob", "carol"}, recipients)
	for _, h := range hands {
		for _, m := range h.Messages {
			assert.Equal(t, h.Nick, m.Target)
		}
		// Header, blank, 10 cards, blank, prompt.
		assert.Len(t, h.Messages, game.DefaultHandSize+4)
	}

	msgs = s.PlayAnswer("bob", 0)
	assert.Equal(t, "Okay.", msgs[0].Text)
	assert.Len(t, player(t, s, "bob").Hand, game.DefaultHandSize-1)
	assert.Equal(t, domain.PhaseAnswers, s.Phase)

	msgs = s.PlayAnswer("carol", 4)
	assert.Equal(t, domain.PhaseSelection, s.Phase, "last answer should auto-transition to selection")
	assert.Contains(t, texts(msgs), "Okay, everyone is in with their answers.")
	assert.Contains(t, texts(msgs), `alice: you can say "!cah read cards" now to have me list them.`)

	// Reveal indices are positions in the post-shuffle order.
	msgs = s.ReadCards("alice")
	require.Len(t, msgs, 2)
	assert.Equal(t, fmt.Sprintf("0 - %s", s.RoundAnswers[0].Text), msgs[0].Text)
	assert.Equal(t, fmt.Sprintf("1 - %s", s.RoundAnswers[1].Text), msgs[1].Text)

	idx := revealedIndexOf(t, s, "bob")
	msgs, result, err := s.ChooseWinner("alice", idx)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "bob", result.RoundWinner)
	assert.Equal(t, 1, result.Points)
	assert.False(t, result.Concluded)
	assert.Contains(t, msgs[0].Text, "bob: you won the round!")

	// Judge advanced by one position, phase looped back to QUESTION and
	// the non-judge hands are back to their pre-round size.
	assert.Equal(t, domain.PhaseQuestion, s.Phase)
	assert.Equal(t, "bob", s.Judge().Name)
	assert.Len(t, player(t, s, "bob").Hand, game.DefaultHandSize)
	assert.Len(t, player(t, s, "carol").Hand, game.DefaultHandSize)
	assert.Len(t, player(t, s, "alice").Hand, game.DefaultHandSize)
}

func TestSession_PlayAnswerRejections(t *testing.T) {
	s := startedSession(t, game.Rules{}, "alice", "bob", "carol")

	// Answering before a question card is out.
	msgs := s.PlayAnswer("bob", 0)
	assert.Contains(t, msgs[0].Text, "Hold your horses")

	// The judge trying to sneak an answer in.
	msgs = s.PlayAnswer("alice", 0)
	assert.Equal(t, "Nice try.", msgs[0].Text)

	_, _, err := s.PlayQuestion("alice")
	require.NoError(t, err)

	msgs = s.PlayAnswer("alice", 0)
	assert.Equal(t, "Nice try.", msgs[0].Text)

	// Out-of-range hand index changes nothing.
	msgs = s.PlayAnswer("bob", game.DefaultHandSize)
	assert.Contains(t, msgs[0].Text, "doesn't exist")
	assert.Len(t, player(t, s, "bob").Hand, game.DefaultHandSize)

	// One answer per player per round.
	s.PlayAnswer("bob", 0)
	msgs = s.PlayAnswer("bob", 0)
	assert.Contains(t, msgs[0].Text, "already played a card this round")

	assert.LessOrEqual(t, len(s.RoundAnswers), len(s.Players)-1)
}

func TestSession_ChooseWinnerRejections(t *testing.T) {
	s := startedSession(t, game.Rules{}, "alice", "bob", "carol")

	// Choosing before selection.
	msgs, result, err := s.ChooseWinner("alice", 0)
	require.NoError(t, err)
	require.Nil(t, result)
	assert.Contains(t, msgs[0].Text, "haven't even read them yet")

	_, _, err = s.PlayQuestion("alice")
	require.NoError(t, err)
	s.PlayAnswer("bob", 0)
	s.PlayAnswer("carol", 0)
	require.Equal(t, domain.PhaseSelection, s.Phase)

	// A non-judge choosing is silently ignored.
	msgs, result, err = s.ChooseWinner("bob", 0)
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Empty(t, msgs)

	// So is a non-judge asking for the reveal.
	assert.Empty(t, s.ReadCards("bob"))

	// Out-of-range index is rejected without state change.
	msgs, result, err = s.ChooseWinner("alice", 5)
	require.NoError(t, err)
	assert.Nil(t, result)
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.PhaseSelection, s.Phase)
	for _, c := range s.RoundAnswers {
		assert.False(t, c.Winner)
	}
}

func TestSession_ReadCardsKeepsTheSameCards(t *testing.T) {
	s := startedSession(t, game.Rules{}, "alice", "bob", "carol")
	_, _, err := s.PlayQuestion("alice")
	require.NoError(t, err)
	s.PlayAnswer("bob", 0)
	s.PlayAnswer("carol", 0)

	before := map[string]bool{}
	for _, c := range s.RoundAnswers {
		before[c.ID.String()] = true
	}

	s.ReadCards("alice")

	after := map[string]bool{}
	for _, c := range s.RoundAnswers {
		after[c.ID.String()] = true
	}
	assert.Equal(t, before, after, "reveal permutes, never adds or drops")
}

func TestSession_WinThreshold(t *testing.T) {
	playRound := func(t *testing.T, s *game.Session, winner string) *game.WinnerResult {
		t.Helper()
		judge := s.Judge().Name
		_, _, err := s.PlayQuestion(judge)
		require.NoError(t, err)
		for _, p := range s.Players {
			if p.Name != judge {
				s.PlayAnswer(p.Name, 0)
			}
		}
		require.Equal(t, domain.PhaseSelection, s.Phase)
		s.ReadCards(judge)

		_, result, err := s.ChooseWinner(judge, revealedIndexOf(t, s, winner))
		require.NoError(t, err)
		require.NotNil(t, result)
		return result
	}

	s := startedSession(t, game.Rules{PointsToWin: 2}, "alice", "bob", "carol")

	// Round 1: alice judges, bob wins. One point is one short of two.
	result := playRound(t, s, "bob")
	assert.False(t, result.Concluded)
	assert.Equal(t, 1, result.Points)
	require.Equal(t, "bob", s.Judge().Name)

	// Round 2: bob judges, carol wins.
	result = playRound(t, s, "carol")
	assert.False(t, result.Concluded)
	require.Equal(t, "carol", s.Judge().Name)

	// Round 3: carol judges, bob reaches exactly two points.
	result = playRound(t, s, "bob")
	assert.True(t, result.Concluded)
	assert.Equal(t, "bob", result.RoundWinner)
	assert.Equal(t, 2, result.Points)
	assert.Equal(t, domain.PhaseConclusion, s.Phase)
}

func TestSession_KickCompletesAllIn(t *testing.T) {
	s := startedSession(t, game.Rules{}, "alice", "bob", "carol", "dave")
	_, _, err := s.PlayQuestion("alice")
	require.NoError(t, err)

	s.PlayAnswer("bob", 0)
	s.PlayAnswer("carol", 0)
	require.Equal(t, domain.PhaseAnswers, s.Phase)

	// Kicking the one player still holding out finishes the round, same as
	// a normal last-answer submission.
	msgs, err := s.Kick("alice", "dave")
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseSelection, s.Phase)
	assert.Contains(t, texts(msgs), "Okay, everyone is in with their answers.")
	assert.Len(t, s.Players, 3)
}

func TestSession_KickWithdrawsPendingAnswer(t *testing.T) {
	s := startedSession(t, game.Rules{}, "alice", "bob", "carol", "dave")
	_, _, err := s.PlayQuestion("alice")
	require.NoError(t, err)

	s.PlayAnswer("bob", 0)
	require.Len(t, s.RoundAnswers, 1)

	_, err = s.Kick("alice", "bob")
	require.NoError(t, err)
	assert.Empty(t, s.RoundAnswers, "a kicked player's pending card is withdrawn")
	assert.Equal(t, domain.PhaseAnswers, s.Phase)

	s.PlayAnswer("carol", 0)
	s.PlayAnswer("dave", 0)
	assert.Equal(t, domain.PhaseSelection, s.Phase)
}

func TestSession_KickJudgeVoidsRound(t *testing.T) {
	s := startedSession(t, game.Rules{}, "alice", "bob", "carol", "dave")
	s.JudgeIndex = 1 // bob judges this round
	_, _, err := s.PlayQuestion("bob")
	require.NoError(t, err)

	s.PlayAnswer("carol", 0)
	require.Len(t, player(t, s, "carol").Hand, game.DefaultHandSize-1)

	msgs, err := s.Kick("alice", "bob")
	require.NoError(t, err)

	assert.Equal(t, domain.PhaseQuestion, s.Phase)
	assert.Equal(t, "carol", s.Judge().Name, "the seat passes to the next player in rotation")
	assert.Empty(t, s.RoundAnswers)
	assert.Len(t, player(t, s, "carol").Hand, game.DefaultHandSize, "submitted answers are replaced")
	assert.Contains(t, texts(msgs), "The card czar left the game, so this round is void.")
}

func TestSession_KickDuringSelectionRenumbers(t *testing.T) {
	s := startedSession(t, game.Rules{}, "alice", "bob", "carol", "dave")
	_, _, err := s.PlayQuestion("alice")
	require.NoError(t, err)

	s.PlayAnswer("bob", 0)
	s.PlayAnswer("carol", 0)
	s.PlayAnswer("dave", 0)
	require.Equal(t, domain.PhaseSelection, s.Phase)
	s.ReadCards("alice")

	// Withdrawing carol's card shifts the indices the judge was just shown,
	// so the remaining answers get listed again in their new order.
	msgs, err := s.Kick("alice", "carol")
	require.NoError(t, err)
	require.Len(t, s.RoundAnswers, 2)

	got := texts(msgs)
	assert.Contains(t, got, "The answers have been renumbered:")
	assert.Contains(t, got, fmt.Sprintf("0 - %s", s.RoundAnswers[0].Text))
	assert.Contains(t, got, fmt.Sprintf("1 - %s", s.RoundAnswers[1].Text))

	// The re-announced indices are the ones winner selection resolves.
	_, result, err := s.ChooseWinner("alice", revealedIndexOf(t, s, "bob"))
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "bob", result.RoundWinner)
}

func TestSession_KickRejections(t *testing.T) {
	s := startedSession(t, game.Rules{}, "alice", "bob", "carol")

	msgs, err := s.Kick("bob", "carol")
	require.NoError(t, err)
	assert.Contains(t, msgs[0].Text, "Only the host can kick")
	assert.Len(t, s.Players, 3)

	msgs, err = s.Kick("alice", "zed")
	require.NoError(t, err)
	assert.Contains(t, msgs[0].Text, "is not a player")

	// The host leaving would orphan the game, so self-kick is refused.
	msgs, err = s.Kick("alice", "alice")
	require.NoError(t, err)
	assert.Contains(t, msgs[0].Text, "can't kick yourself")
	assert.Len(t, s.Players, 3)

	// Removing anyone would drop the roster below the minimum.
	msgs, err = s.Kick("alice", "carol")
	require.NoError(t, err)
	assert.Contains(t, msgs[0].Text, "less than the minimum")
	assert.Len(t, s.Players, 3)
}

func TestSession_JudgeIndexStaysOnSamePlayerAfterKick(t *testing.T) {
	s := startedSession(t, game.Rules{}, "alice", "bob", "carol", "dave")
	s.JudgeIndex = 3
	require.Equal(t, "dave", s.Judge().Name)

	_, err := s.Kick("alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, "dave", s.Judge().Name, "removing an earlier player must not move the judge seat")
}

func TestSession_Expiration(t *testing.T) {
	s := game.NewSession(channel, "alice", catalogN(5, 5), game.Rules{MaxDuration: 10 * time.Second})

	s.CreatedAt = time.Now().Add(-9 * time.Second)
	assert.False(t, s.Expired())

	s.CreatedAt = time.Now().Add(-11 * time.Second)
	assert.True(t, s.Expired())
}

func TestSession_SetRule(t *testing.T) {
	s := game.NewSession(channel, "alice", catalogN(5, 5), game.Rules{})

	msgs := s.SetRule("alice", "max_points", "5")
	assert.Contains(t, msgs[0].Text, "set max_points to 5")
	assert.Equal(t, 5, s.Rules.PointsToWin)

	msgs = s.SetRule("alice", "max_duration", "120")
	assert.Contains(t, msgs[0].Text, "set max_duration to 120")
	assert.Equal(t, 120*time.Second, s.Rules.MaxDuration)

	msgs = s.SetRule("alice", "hand_size", "20")
	assert.Contains(t, msgs[0].Text, `supported keys are "max_points" and "max_duration"`)

	msgs = s.SetRule("alice", "max_points", "lots")
	assert.Contains(t, msgs[0].Text, "not a number")
	assert.Equal(t, 5, s.Rules.PointsToWin)
}

func TestSession_DeckExhaustion(t *testing.T) {
	// Three players at the default hand size need 30 answer cards.
	s := game.NewSession(channel, "alice", catalogN(5, 5), game.Rules{})
	s.Join("bob")
	s.Join("carol")

	_, err := s.Start("alice")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeResourceExhausted))

	// An empty question pile fails the judge's draw the same way.
	s = startedSession(t, game.Rules{}, "alice", "bob", "carol")
	for s.Questions.Len() > 0 {
		_, drawErr := s.Questions.Draw()
		require.NoError(t, drawErr)
	}
	_, _, err = s.PlayQuestion("alice")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeResourceExhausted))
}

// The admin API snapshots sessions from the HTTP goroutine while commands
// mutate them; the race detector keeps this honest.
func TestSession_SnapshotDuringPlay(t *testing.T) {
	s := startedSession(t, game.Rules{PointsToWin: 50}, "alice", "bob", "carol")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			snap := s.Snapshot()
			assert.Equal(t, channel, snap.Channel)
		}
	}()

	for i := 0; i < 10; i++ {
		judge := s.Judge().Name
		_, _, err := s.PlayQuestion(judge)
		require.NoError(t, err)

		for _, name := range []string{"alice", "bob", "carol"} {
			if name != judge {
				s.PlayAnswer(name, 0)
			}
		}

		s.ReadCards(judge)
		_, result, err := s.ChooseWinner(judge, 0)
		require.NoError(t, err)
		require.NotNil(t, result)
	}

	<-done
}

func TestSession_Status(t *testing.T) {
	s := startedSession(t, game.Rules{}, "alice", "bob", "carol")

	msgs := s.Status()
	require.Len(t, msgs, 4)
	assert.Contains(t, msgs[0].Text, "Phase: question")
	assert.Contains(t, texts(msgs), "alice (host) (czar): 0 points")
}

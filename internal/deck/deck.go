package deck

import (
	"bufio"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/victornm/cahbot/internal/domain"
	"github.com/victornm/cahbot/internal/errors"
)

// Catalog is the fixed card text loaded once at process start. Sessions build
// their own shuffled decks from it, so the catalog itself is never mutated.
type Catalog struct {
	Questions []string
	Answers   []string
}

// LoadCatalog reads the two flat card files, one card per line. Blank lines
// are skipped.
func LoadCatalog(questionsFile, answersFile string) (*Catalog, error) {
	questions, err := readLines(questionsFile)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}

	answers, err := readLines(answersFile)
	if err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}

	return &Catalog{Questions: questions, Answers: answers}, nil
}

func readLines(file string) ([]string, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	return lines, nil
}

// Deck is a per-session draw pile. Draw pops from the tail; the pile only
// shrinks and is never reshuffled or recycled.
type Deck struct {
	kind  domain.CardKind
	cards []*domain.Card
}

// New builds a deck of fresh card instances from the given texts, uniformly
// shuffled so the catalog order is never reused.
func New(kind domain.CardKind, texts []string) *Deck {
	cards := make([]*domain.Card, 0, len(texts))
	for _, t := range texts {
		cards = append(cards, &domain.Card{
			ID:   uuid.New(),
			Kind: kind,
			Text: t,
		})
	}

	rand.Shuffle(len(cards), func(i, j int) {
		cards[i], cards[j] = cards[j], cards[i]
	})

	return &Deck{kind: kind, cards: cards}
}

func (d *Deck) Len() int {
	return len(d.cards)
}

// Draw pops one card. An empty pile is a session-fatal condition and is
// reported as resource exhaustion rather than wrapping around.
func (d *Deck) Draw() (*domain.Card, error) {
	if len(d.cards) == 0 {
		return nil, errors.New(errors.CodeResourceExhausted,
			errors.WithMessagef("%s deck is exhausted", d.kind))
	}

	c := d.cards[len(d.cards)-1]
	d.cards = d.cards[:len(d.cards)-1]
	return c, nil
}

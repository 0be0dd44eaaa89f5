// Package command recognizes the fixed "!cah" chat vocabulary and turns it
// into a closed set of typed commands. The game engine only ever sees these;
// it never re-parses text.
package command

import (
	"regexp"
	"strconv"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindHelp
	KindStatus
	KindNewGame
	KindJoinGame
	KindStartGame
	KindCancelGame
	KindKickPlayer
	KindPlayQuestion
	KindPlayAnswer
	KindReadCards
	KindChooseCard
	KindSetConfig
)

func (k Kind) String() string {
	switch k {
	case KindHelp:
		return "help"
	case KindStatus:
		return "status"
	case KindNewGame:
		return "new_game"
	case KindJoinGame:
		return "join_game"
	case KindStartGame:
		return "start_game"
	case KindCancelGame:
		return "cancel_game"
	case KindKickPlayer:
		return "kick_player"
	case KindPlayQuestion:
		return "play_question_card"
	case KindPlayAnswer:
		return "play_answer_card"
	case KindReadCards:
		return "read_cards"
	case KindChooseCard:
		return "choose_card"
	case KindSetConfig:
		return "set_config"
	}
	return "unknown"
}

// Command is one classified chat command. Channel is empty for commands
// received as private messages.
type Command struct {
	Kind    Kind
	Channel string
	Nick    string
	Private bool

	// CardIndex is set for play_answer_card and choose_card.
	CardIndex int
	// TargetNick is set for kick_player.
	TargetNick string
	// Key/Value are set for set_config.
	Key   string
	Value string
}

type filter struct {
	kind Kind
	re   *regexp.Regexp
	// privateOnly commands are only recognized in private messages, like
	// playing an answer card.
	privateOnly bool
}

var filters = []filter{
	{kind: KindHelp, re: regexp.MustCompile(`^!cah help$`)},
	{kind: KindStatus, re: regexp.MustCompile(`^!cah status$`)},
	{kind: KindNewGame, re: regexp.MustCompile(`^!cah new$`)},
	{kind: KindJoinGame, re: regexp.MustCompile(`^!cah join$`)},
	{kind: KindStartGame, re: regexp.MustCompile(`^!cah start$`)},
	{kind: KindCancelGame, re: regexp.MustCompile(`^!cah cancel$`)},
	{kind: KindKickPlayer, re: regexp.MustCompile(`^!cah kick (?P<nick>\S+)$`)},
	{kind: KindPlayQuestion, re: regexp.MustCompile(`^!cah play card$`)},
	{kind: KindPlayAnswer, re: regexp.MustCompile(`^!cah play (?P<cardnum>[0-9]+)$`), privateOnly: true},
	{kind: KindReadCards, re: regexp.MustCompile(`^!cah read cards$`)},
	{kind: KindChooseCard, re: regexp.MustCompile(`^!cah (?P<cardnum>[0-9]+) wins$`)},
	{kind: KindSetConfig, re: regexp.MustCompile(`^!cah set (?P<key>\S+) (?P<value>\S+)$`)},
}

// Parse classifies one chat line. It returns false when the line is not a
// recognized command, which includes private-only commands arriving on a
// channel.
func Parse(text string, private bool) (Command, bool) {
	for _, f := range filters {
		m := f.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if f.privateOnly && !private {
			continue
		}

		cmd := Command{Kind: f.kind, Private: private}
		for i, name := range f.re.SubexpNames() {
			switch name {
			case "cardnum":
				// The pattern guarantees digits only.
				cmd.CardIndex, _ = strconv.Atoi(m[i])
			case "nick":
				cmd.TargetNick = m[i]
			case "key":
				cmd.Key = m[i]
			case "value":
				cmd.Value = m[i]
			}
		}

		return cmd, true
	}

	return Command{}, false
}

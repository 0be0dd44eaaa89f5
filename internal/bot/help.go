package bot

// helpText is sent line by line as a private message, since the chat side has
// no notion of multi-line payloads.
var helpText = []string{
	"Cards Against Humanity bot. All commands start with !cah.",
	" ",
	"NEW PHASE:",
	`  "!cah new"       create a new game in the channel (you become the host)`,
	`  "!cah join"      opt in to the game before it starts`,
	`  "!cah start"     start the game once enough players joined (host decides when)`,
	" ",
	"PLAY PHASE:",
	`  "!cah play card" as card czar, throw down the round's question card`,
	`  "!cah play 3"    in a private message, play card number 3 from your hand`,
	`  "!cah read cards" as card czar, have me read everyone's answers`,
	`  "!cah 4 wins"    as card czar, pick answer number 4 as the round winner`,
	" ",
	"HOUSEKEEPING:",
	`  "!cah status"    show the current game's phase, players and points`,
	`  "!cah kick bob"  as host, remove bob from the game`,
	`  "!cah set max_points 5"    change the points needed to win`,
	`  "!cah set max_duration 3600"    change the game's maximum age in seconds`,
	`  "!cah cancel"    as host, cancel the game`,
}

// Package reply holds every user-facing message template. Each template is
// a pure function over an explicit set of named fields, so substitution is
// type-checked instead of scanning placeholder strings.
package reply

import "fmt"

// Menu greets a participant and lists the available commands.
func Menu(nickname string) string {
	return fmt.Sprintf("Hi *%s*! 👋 Welcome to AnonyChat.\n\n"+
		"*Commands:*\n\n"+
		"1.  *!chat*\n    _Find a random chat partner._\n\n"+
		"2.  *!stop* / *!skip*\n    _End the current chat or search._\n\n"+
		"3.  *!report*\n    _Report your current chat partner._\n\n"+
		"4.  *!game*\n    _Play a quiz while you wait._\n\n"+
		"5.  *!sticker*\n    _Send an image with this caption to make a sticker._", nickname)
}

// --- matchmaking -----------------------------------------------------------

func Searching() string {
	return "Looking for a partner... I'll let you know as soon as someone shows up!"
}

func StillSearching() string {
	return "Still searching for the right partner, hang in there!"
}

func AlreadyQueued() string {
	return "Relax, you're already in the queue. I'm finding you a good match, be patient!"
}

func SearchCancelled() string {
	return "Search cancelled. If you change your mind, just type *!chat* again!"
}

func NotInSession() string {
	return "Hmm, you don't seem to be in a chat session or queue right now."
}

func Paired() string {
	return "Partner found! 🎉 Say hi — everything you send now goes to them. Type *!stop* to end the session."
}

func QueueExpired() string {
	return "Nobody showed up in time 😔 so I've connected you to our AI companion instead. Chat away, or type *!stop* to leave."
}

// --- in-room ---------------------------------------------------------------

func SessionEnded() string {
	return "Chat session ended. Type *!chat* to find a new partner."
}

func PartnerLeft() string {
	return "Aw, your partner has ended the session. Don't be sad, type *!chat* to find another one! 😊"
}

func ReportAccepted() string {
	return "Your report has been received and will be reviewed by an admin. This chat session has been closed."
}

func ReportedSessionEnded() string {
	return "This chat session has been closed by the system following a report from your partner."
}

func ProfanityWarning() string {
	return "Hey, watch the language. Your message was not delivered and has been recorded as a violation."
}

func MediaForwarding() string {
	return "⏳ _Forwarding your media to your partner..._"
}

func MediaFailed() string {
	return "Sorry, I couldn't forward that media."
}

// --- AI fallback -----------------------------------------------------------

func AIFallbackExit() string {
	return "Okay, the AI chat is over. Type *!chat* whenever you want a real partner!"
}

func AIUnavailable() string {
	return "Sorry, my brain is having a moment 🤕 — let's try again later."
}

// --- quiz ------------------------------------------------------------------

func GameMenu() string {
	return "Pick a game:\n\n1. *trivia* — general knowledge questions\n2. *riddle* — lateral-thinking riddles\n\nReply with the number or the name. Type *!stop* at any time to quit."
}

func GameInvalidChoice() string {
	return "That's not one of the games I know. Type *!game* to see the list again."
}

func GameQuestion(prompt string) string {
	return fmt.Sprintf("❓ %s", prompt)
}

func GameCorrect(xp int, total int, tier string) string {
	return fmt.Sprintf("Correct! 🎉 +%d XP (total %d, tier *%s*). Next question coming up...", xp, total, tier)
}

func GameWrong(answer string) string {
	return fmt.Sprintf("Not quite! The answer was *%s*. Next question coming up...", answer)
}

func GameTimeout(answer string) string {
	return fmt.Sprintf("Time's up! ⏰ The answer was *%s*. Next question coming up...", answer)
}

func GameApology() string {
	return "Sorry, I couldn't come up with a question right now. Let's try again later — type *!game* to play."
}

func GameStopped() string {
	return "Game over! Type *!game* to play again or *!chat* to find a partner."
}

// --- sticker ---------------------------------------------------------------

func StickerWorking() string {
	return "Nice, making your sticker now..."
}

func StickerFailed() string {
	return "Sorry, something went wrong while making the sticker."
}

func StickerInstruction() string {
	return "Send an image with the caption *!sticker* and I'll turn it into a sticker."
}

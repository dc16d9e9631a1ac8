package relay

const (
	CommandStart = "/start"
	CommandHelp  = "/help"
)

// HelpText is sent for /help and after the /start greeting.
const HelpText = `*Ask The Caterpillar* is a harm reduction chatbot that allows people easy access to information about substances so that they can make _informed_ choices.

You can try things like...

- _Tell me about marijuana_
- _What are the effects of speed?_
- _How much DMT should I take?_
- _Can I mix MDMA and MXE?_
- _How long does PCP last?_
- _What color is the marquis test for LSD?_
- _Is alcohol toxic?_
- _Is cocaine safe?_`

// FallbackText is sent whenever the query service gives no usable answer.
const FallbackText = "We're having some issues on our end, please check by again later!"

const welcomeFormat = "Welcome, %s!"

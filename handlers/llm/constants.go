package llm

// DefaultModel is the model identifier new sessions start with.
const DefaultModel = "gpt-4o-mini"

// DEFAULT_SYSTEM_PROMPT seeds turn 0 of every new session unless the user
// configured their own.
const DEFAULT_SYSTEM_PROMPT = `You are a cinematic, fair D&D Game Master. It’s a sandbox. Defer to the player’s setup and house rules. Keep turns brisk and descriptive.`

// ErrorTurnPrefix marks a rendered turn that reports a failure.
const ErrorTurnPrefix = "⚠️ "

// BusyNotice is shown when a message is sent while a reply is still streaming.
const BusyNotice = "The Game Master is still answering. Wait for the reply to finish."

package reply

// Fixed user-facing texts. The user never sees a raw error or diagnostic
// string; every failure maps to exactly one of these.
const (
	// WelcomeMessage answers the /start command. No generation involved.
	WelcomeMessage = "🤖 **Hello! I am your AI Assistant.**\n\n" +
		"I am powered by Google Gemini and ready to help. " +
		"Send me a message to start chatting, brainstorm ideas, or ask any questions!"

	// EmptyReplyMessage covers the graceful-degradation case: the provider
	// answered but produced no usable text.
	EmptyReplyMessage = "I'm sorry, my AI engine couldn't process that. Could you try rephrasing?"

	// BusyMessage covers quota exhaustion and rate limiting.
	BusyMessage = "⚠️ **API Limit Reached:** My AI engine is receiving too many requests " +
		"right now or has reached its daily capacity. Please try again later or tomorrow!"

	// ConfigProblemMessage covers invalid or expired provider credentials.
	ConfigProblemMessage = "🛑 **Configuration Error:** My API key seems to be invalid or expired. " +
		"Please report this to the Developer!"

	// GenericFailureMessage covers every failure the taxonomy cannot name.
	GenericFailureMessage = "⚠️ **System Error:** My AI engine is currently unreachable or busy. " +
		"Please try again in a moment!"
)

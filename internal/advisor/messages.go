package advisor

// Message templates. Walk-derived messages are followed by the rendered
// queries of the trail.
const (
	MsgOK = "The yield of your query is within the suggested range. Ut bene succedat!"

	MsgLittleTooHigh = "The yield of your query might be a little high for conducting a systematic review. Here is my analysis:"
	MsgTooHigh       = "The yield of your query is too high for conducting a systematic review. Here is my analysis:"
	MsgLittleTooLow  = "Your query might yield just too few results for a systematic review. Here is my analysis:"
	MsgTooLow        = "Your query yields too few results for a systematic review. Here is my analysis:"

	MsgTooHighNoRestriction   = "This part of your query yields a large number of results. This might originate from missing restrictions with AND or NOT operators. I suggest restrictions:"
	MsgTooHighSoftRestriction = "This part of your query yields a large number of results. The restrictions you implemented with AND or NOT operators might not be tight enough:"
	MsgTooHighOnlyOr          = "The yield of your subterms is satisfactory, but extending them with OR operators might cause a problem. Try omitting unnecessary OR connections:"

	MsgTooLowNoExtension   = "I suggest extending the following term with OR operators:"
	MsgTooLowSoftExtension = "The extensions you implemented with OR operators might not be sufficient. I suggest extending your query here:"
	MsgTooLowOnlyAnd       = "The yield of your subterms is satisfactory. Connecting them with AND operators reduces the yield too much. Try omitting too restrictive AND connections:"
)

// Package relay is the conversation router.
//
// Router.Handle takes one normalized inbound Event and decides what it
// means for the sender: an admin or operator command, a settings dialog
// step, a contact to authorize, a client message for the chatbot or an
// operator, or an operator reply to relay back. Handling produces
// outbound intents on the Transport interface and mutations on the
// session store and client directory. Events are handled one at a time.
//
// Client states move between chatbot, operator and entering_cities:
//
//	chatbot --open chat, operator found--> operator
//	operator --close chat / no operator left--> chatbot
//	chatbot --settings "add city"--> entering_cities --free text--> chatbot
//
// Operator replies find their client through the forward index written
// whenever a client message is forwarded to an operator.
package relay

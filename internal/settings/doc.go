// Package settings implements the client settings dialog.
//
// A dialog position is a MenuPath, parsed from the inline button callback
// token ("s", "s♞city", "s♞city♞del♞Москва" and so on) and serialized back
// only when building buttons. Engine.Render turns a path and the client's
// record into a Menu: display text plus ordered options, where every
// non-root menu starts with a back option pointing at its parent.
//
// Leaves that change the record (delete one, delete all, add one) persist
// through the client directory and answer with a confirmation followed by
// the parent menu. Choosing "add city" switches the client to the
// entering_cities state and ends the dialog; the next free-text message is
// handed to Engine.AddCities.
package settings

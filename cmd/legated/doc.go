// Command legated is the seat daemon hosting the legate session client.
//
// It is started by the privileged session helper, which hands it the
// helper socket and controlling terminal as inherited descriptors. The
// run command connects the session client, opens the seat's DRM device
// through the helper, and dispatches the event loop until terminated.
// The probe and config commands are operator conveniences that need no
// helper.
package main

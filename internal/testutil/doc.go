// Package testutil holds test helpers shared across packages: a fluent
// conversation history builder, an event stream drain helper and the
// behavioral contract every session store must satisfy.
package testutil

// Package subscription implements the subscriber lifecycle: signup,
// confirmation, and unsubscription across the backup log, the primary
// store, the token service, and the unsubscribe registry.
//
// Write priority is fixed: the backup log is the durability source of
// truth and is written first on signup; the primary store is best-effort
// and its failures never fail the request. Token redemption and
// unsubscribe-add fail closed because they gate subsequent state.
package subscription

/*
Package dispatch implements the alert delivery pipeline: one logical
worker pool per medium type, each pulling queued alerts and invoking
the medium's Handler.

Handler is a tagged-variant dispatch point, not a type switch: the
Registry maps a medium type to its Handler, and the worker loop only
ever calls Handler.Deliver. Transient failures are requeued with
exponential backoff (backoff.v5) capped at MaxBackoff, for at most
MaxAttempts attempts; permanent
failures and exhausted retries are dropped and counted, but the check's
alerting_media entry is left alone so a later event can retry.

	registry := dispatch.NewRegistry()
	registry.Register(types.MediumSlack, dispatch.NewSlackHandler())
	d := dispatch.New(dispatch.Config{}, store, registry, broker)
	d.Start([]types.MediumType{types.MediumSlack})
	defer d.Stop()
*/
package dispatch

package deposit

// msatFactor converts millisatoshis to satoshis.
const msatFactor = 1000

// normalizePaidAmount converts the provider-reported paid amount to
// sats. LNbits reports millisatoshis while LND reports sats, and the
// two are told apart by scale: a report at least a thousand times the
// requested amount is millisats. A zero report falls back to the
// requested amount.
func normalizePaidAmount(reported, requested int64) int64 {
	if reported <= 0 {
		return requested
	}

	if requested > 0 && reported >= requested*msatFactor {
		return reported / msatFactor
	}

	return reported
}

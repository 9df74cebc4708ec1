// Package scoring ranks a channel against a matching request.
//
// A score is the weighted sum of five sub-scores, each in [0,1]:
//   - fee: total estimated fee placed between a floor (0.01% of the amount)
//     and a ceiling (1% of the amount)
//   - availability: penalties for missing KYC, net-worth gates and an
//     unsupported payment method
//   - user experience: trading API, chat, phone and support response time
//   - security: insurance, segregated custody and audits
//   - liquidity: a lookup by channel type
//
// Weights and the liquidity table are values passed to NewScorer so they can
// be replaced from configuration or in tests.
package scoring

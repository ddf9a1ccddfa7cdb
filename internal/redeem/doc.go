// Package redeem реализует правила типа getmybonus_anycard.
//
// Включает:
//   - generator.go — синхронизация очереди с anycards, помеченными needsRedeem
//   - enrich.go — дополнение payload серийным номером при claim
//   - reconcile.go — upsert anycard из result и сброс needsRedeem при complete
//   - signals.go — приём сигналов "карта требует погашения"
//
// Все операции принимают repo.Repositories, поэтому выполняются в
// транзакции вызывающей стороны.
package redeem

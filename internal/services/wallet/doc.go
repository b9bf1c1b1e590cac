/*
Package wallet is the durable ledger for principal balances.

Every balance mutation goes through ReserveAndApply (or its in-transaction
variant ApplyInTx), which locks the wallet row, checks the invariant that a
balance never goes negative, updates the balance and appends exactly one
hash-chained ledger entry — all in the same database transaction.

Usage:

	svc := wallet.NewService(repo, cacheService, wallet.Config{}, nil)

	// Create a wallet for a principal
	w, err := svc.CreateWallet(ctx, ownerID, models.RolePassenger, "RWF")

	// Apply a movement
	entry, err := svc.ReserveAndApply(ctx, w.ID, -2500, wallet.Operation{
	    Reason:    models.ReasonTransfer,
	    Reference: ref,
	})

Multi-wallet operations compose ApplyInTx calls inside a single
repo.ExecuteInTransaction, acquiring wallets in ascending id order so two
opposite-direction transfers cannot deadlock.

Errors:

- ErrWalletNotFound: unknown wallet id
- ErrWalletSuspended: wallet not active
- ErrInsufficientFunds: debit would take the balance below zero
- ErrInvalidAmount: zero delta
*/
package wallet

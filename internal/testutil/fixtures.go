package testutil

// Account is a small class in the LineParser dialect with one attribute,
// one routine carrying contracts and a class invariant.
const Account = `note
	model: balance
class ACCOUNT
feature
	balance: INTEGER

	deposit (amount: INTEGER)
		require
			positive: amount > 0
		do
			balance := balance + amount
		ensure
			balance = old balance + amount
		end

	withdraw (amount: INTEGER)
		do
			balance := balance - amount
		end
feature {NONE}
	audit
		do
		end
invariant
	non_negative: balance >= 0
end
`

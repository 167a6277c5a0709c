package tipping

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/xnotip/tipbot_service/internal/domain/entities"
)

const blockExplorerURL = "https://nanolooker.com/block/"

// sentTip records one delivered send for outcome copy. Created marks
// recipients whose tipping account was provisioned by this very tip.
type sentTip struct {
	Handle  string
	Hash    string
	Created bool
}

func successMessage(tipper *entities.SocialAccount, sent []sentTip, perAmount decimal.Decimal) string {
	if len(sent) == 1 {
		if sent[0].Created {
			return fmt.Sprintf("%s created an account for %s and sent %s XNO! 🎉\n\n%s%s",
				tipper.Handle(), sent[0].Handle, perAmount.String(), blockExplorerURL, sent[0].Hash)
		}
		return fmt.Sprintf("%s sent %s %s XNO! 🎉\n\n%s%s",
			tipper.Handle(), sent[0].Handle, perAmount.String(), blockExplorerURL, sent[0].Hash)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s sent %s XNO to each of:\n", tipper.Handle(), perAmount.String())
	for _, tip := range sent {
		fmt.Fprintf(&b, "%s%s %s%s\n", tip.Handle, createdNote(tip), blockExplorerURL, tip.Hash)
	}
	return strings.TrimRight(b.String(), "\n")
}

func createdNote(tip sentTip) string {
	if tip.Created {
		return " (new account)"
	}
	return ""
}

func partialMessage(tipper *entities.SocialAccount, sent []sentTip, failedHandle string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s delivered %d of your tips:\n", tipper.Handle(), len(sent))
	for _, tip := range sent {
		fmt.Fprintf(&b, "%s%s %s%s\n", tip.Handle, createdNote(tip), blockExplorerURL, tip.Hash)
	}
	fmt.Fprintf(&b, "The send to %s failed; the remaining balance stays in your account.", failedHandle)
	return b.String()
}

func malformedMessage(tipper *entities.SocialAccount) string {
	return fmt.Sprintf("%s I couldn't read a tip from that post. Mention or reply to the recipient with an amount, e.g. \"0.1\", optionally followed by \"split\" or \"non-custodial\".",
		tipper.Handle())
}

func insufficientMessage(tipper *entities.SocialAccount, available decimal.Decimal) string {
	return fmt.Sprintf("%s your balance of %s XNO does not cover that tip. Top up your account and try again.",
		tipper.Handle(), available.String())
}

func insufficientShortMessage(tipper *entities.SocialAccount) string {
	return fmt.Sprintf("%s your balance does not cover that tip.", tipper.Handle())
}

func unopenedMessage(tipper *entities.SocialAccount, address string) string {
	return fmt.Sprintf("%s your tipping account has no funds yet. Send some XNO to %s to get started.",
		tipper.Handle(), address)
}

func createdTipperMessage(tipper *entities.SocialAccount, address string) string {
	return fmt.Sprintf("%s I created a tipping account for you, but it has no funds yet. Send some XNO to %s and try the tip again.",
		tipper.Handle(), address)
}

func unopenedShortMessage(tipper *entities.SocialAccount) string {
	return fmt.Sprintf("%s that account holds no funds yet.", tipper.Handle())
}

func noProfileAddressMessage(tipper *entities.SocialAccount) string {
	return fmt.Sprintf("%s add an XNO address to a profile field named XNO, NANO or Ӿ first.", tipper.Handle())
}

func multiRecipientNonCustodialMessage(tipper *entities.SocialAccount) string {
	return fmt.Sprintf("%s non-custodial tips can only have a single recipient.", tipper.Handle())
}

func genericFailureMessage(tipper *entities.SocialAccount) string {
	return fmt.Sprintf("%s something went wrong processing that tip. Please try again later.", tipper.Handle())
}

// pleaseSignMessage posts the unsigned block back to the tipper. The
// block JSON is embedded verbatim so external signing tools can consume
// it; the reply only needs to contain the 128-hex signature.
func pleaseSignMessage(tipper *entities.SocialAccount, recipientHandle string, amount decimal.Decimal, unsigned *entities.UnsignedBlock) string {
	blockJSON, err := json.MarshalIndent(unsigned.Block, "", "  ")
	if err != nil {
		blockJSON = []byte("{}")
	}
	return fmt.Sprintf("%s to send %s %s XNO from your own account, sign this block hash and reply with the signature:\n\nhash: %s\n\n%s",
		tipper.Handle(), recipientHandle, amount.String(), unsigned.Hash, string(blockJSON))
}

func signatureNotFoundMessage(tipper *entities.SocialAccount) string {
	return fmt.Sprintf("%s I could not find a signature in that reply. Reply with the 128-character hex signature of the block hash.",
		tipper.Handle())
}

func signatureRejectedMessage(tipper *entities.SocialAccount) string {
	return fmt.Sprintf("%s that signature does not match the block. Check you signed the exact hash from my earlier post.",
		tipper.Handle())
}

func signedSuccessMessage(tipper *entities.SocialAccount, recipientHandle string, amount decimal.Decimal, hash string) string {
	return fmt.Sprintf("%s sent %s %s XNO from your own account! 🎉\n\n%s%s",
		tipper.Handle(), recipientHandle, amount.String(), blockExplorerURL, hash)
}

func balanceMessage(account *entities.SocialAccount, balance decimal.Decimal, address string) string {
	return fmt.Sprintf("%s your balance is %s XNO.\n\nDeposit address: %s", account.Handle(), balance.String(), address)
}

func addressMessage(account *entities.SocialAccount, address string) string {
	return fmt.Sprintf("%s your deposit address is %s", account.Handle(), address)
}

func withdrawnMessage(account *entities.SocialAccount, amount decimal.Decimal, destination, hash string) string {
	return fmt.Sprintf("%s withdrew %s XNO to %s\n\n%s%s", account.Handle(), amount.String(), destination, blockExplorerURL, hash)
}

func withdrawFailedMessage(account *entities.SocialAccount) string {
	return fmt.Sprintf("%s the withdrawal failed. Your funds are untouched; please try again later.", account.Handle())
}

func badAddressMessage(account *entities.SocialAccount, destination string) string {
	return fmt.Sprintf("%s %q is not a valid XNO address.", account.Handle(), destination)
}

func badAmountMessage(account *entities.SocialAccount) string {
	return fmt.Sprintf("%s I could not read that amount.", account.Handle())
}

func helpMessage(account *entities.SocialAccount) string {
	return fmt.Sprintf("%s commands: balance · address · withdraw [amount] [address]", account.Handle())
}

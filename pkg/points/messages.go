package points

import "fmt"

// ParseModeMarkdown selects Telegram legacy Markdown rendering.
const ParseModeMarkdown = "Markdown"

const (
	playButtonText = "🎮 Play Game"

	welcomeText = "🎮 *Welcome to Points Game!*\n\n" +
		"Collect points and compete with friends!\n\n" +
		"🎁 Daily rewards\n" +
		"💎 Buy points with Stars (real payments!)\n" +
		"💸 Test refunds with `/refund`\n\n" +
		"Tap the button below to play!"

	helpText = "❓ *How to Play*\n\n" +
		"1️⃣ Open the game from the button\n" +
		"2️⃣ Claim daily points\n" +
		"3️⃣ Buy more points with Stars\n" +
		"4️⃣ Test refunds with receipt ID\n\n" +
		"*Commands:*\n" +
		"/start - Start the game\n" +
		"/help - Show this help\n" +
		"/refund RECEIPT\\_ID - Refund a payment"

	refundUsageText    = "❌ Please provide a receipt ID:\n`/refund YOUR_RECEIPT_ID`"
	receiptMissingText = "❌ Receipt not found. Make sure you copied the correct ID."
	notOwnerText       = "❌ This receipt does not belong to you."
	malformedEventText = "❌ We could not read this payment. Please contact support with your receipt ID."
)

// WebAppButton is an inline keyboard button that opens a web app.
type WebAppButton struct {
	Text string
	URL  string
}

// Message is one outbound chat message.
type Message struct {
	ChatID       int64
	Text         string
	ParseMode    string
	WebAppButton *WebAppButton
}

func claimedMessage(userID UserID, awarded PointsAmount) Message {
	return Message{
		ChatID: userID.Int64(),
		Text:   fmt.Sprintf("🎁 You claimed %d daily points!\n\nCome back tomorrow for more!", awarded.Int64()),
	}
}

func paymentMessage(chatID int64, receipt Receipt) Message {
	return Message{
		ChatID: chatID,
		Text: fmt.Sprintf(
			"✅ *Payment Successful!*\n\nYou purchased *%s points* for *%d Stars*!\n\nReceipt ID: `%s`\n\n_To test refunds, use:_\n`%s %s`",
			formatThousands(receipt.Amount.Int64()),
			receipt.Price.Int64(),
			receipt.ChargeID,
			CommandRefund,
			receipt.ChargeID,
		),
		ParseMode: ParseModeMarkdown,
	}
}

func refundedMessage(chatID int64, receipt Receipt) Message {
	return Message{
		ChatID: chatID,
		Text: fmt.Sprintf(
			"✅ *Refund Successful!*\n\nYour *%d Stars* have been refunded.\n\n_Thank you for testing the payment system!_",
			receipt.Price.Int64(),
		),
		ParseMode: ParseModeMarkdown,
	}
}

// The gateway description is free text, so it is sent without a parse mode.
func refundFailedMessage(chatID int64, err error) Message {
	return Message{
		ChatID: chatID,
		Text:   fmt.Sprintf("❌ Refund failed: %s", GatewayDescription(err)),
	}
}

func markdownMessage(chatID int64, text string) Message {
	return Message{ChatID: chatID, Text: text, ParseMode: ParseModeMarkdown}
}

func welcomeMessage(chatID int64, appURL string) Message {
	message := markdownMessage(chatID, welcomeText)
	if appURL != "" {
		message.WebAppButton = &WebAppButton{Text: playButtonText, URL: appURL}
	}
	return message
}

package telegram

// User-facing texts. Koaly speaks Spanish.
const (
	welcomeText = `👋 ¡Hola! Soy *Koaly*, tu amigo emocional con el corazón de un humano y la sabiduría de un psicólogo.

Puedes escribirme libremente sobre lo que sientes o piensas, y estaré aquí para escucharte y ayudarte.

🆓 En el modo gratuito puedes hablar conmigo un rato al día y ver si conectamos.
💎 Si deseas una experiencia más profunda y continua, accede a Koaly Premium:

- Memoria personalizada
- Conversaciones ilimitadas
- Seguimiento único de lo que hablamos

👉 Envía /premium para desbloquearlo`

	limitText = `🚫 Has hablado suficiente por hoy.

Si deseas seguir hablando conmigo, desbloquea Koaly Premium:
👉 Envía /premium y te paso tu enlace de pago`

	apologyText = "⚠️ Lo siento, algo salió mal al hablar contigo."

	premiumCongratsText = "🎉 ¡Felicidades! Ahora tienes acceso completo como usuario Premium. Estoy aquí para ti, siempre. 🫶"

	// checkoutLinkFmt wraps the per-user checkout URL created on demand.
	checkoutLinkFmt = `💎 Aquí tienes tu enlace para Koaly Premium:

👉 [Hazte Premium aquí](%s)

Cuando completes el pago te aviso por aquí mismo.`

	checkoutFailedText = "⚠️ No pude crear tu enlace de pago ahora mismo. Inténtalo de nuevo en unos minutos."
)

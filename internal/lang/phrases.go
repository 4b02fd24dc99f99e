package lang

import "fmt"

// Phrase identifies a canned sentence JARVIS says on its own.
type Phrase int

const (
	Fallback Phrase = iota
	Apology
	NotConfigured
	LanguageChanged
	VolumeUp
	VolumeDown
	Muted
	VolumeSet
	PhotoTaken
	ScreenshotTaken
	CameraUnavailable
	Opening
	Searching
	SystemInfo
	ActionFailed
	Listening
)

var systemPrompts = map[Code]string{
	PtBR: "Você é JARVIS, um assistente virtual inteligente. Seja útil, conciso e amigável. Responda sempre em português brasileiro.",
	EnUS: "You are JARVIS, an intelligent virtual assistant. Be helpful, concise and friendly. Always respond in English.",
	EsES: "Eres JARVIS, un asistente virtual inteligente. Sé útil, conciso y amigable. Responde siempre en español.",
	FrFR: "Tu es JARVIS, un assistant virtuel intelligent. Sois utile, concis et aimable. Réponds toujours en français.",
	DeDE: "Du bist JARVIS, ein intelligenter virtueller Assistent. Sei hilfreich, prägnant und freundlich. Antworte immer auf Deutsch.",
}

// SystemPrompt returns the persona prompt for c, pt-BR for unknown codes.
func SystemPrompt(c Code) string {
	if p, ok := systemPrompts[c]; ok {
		return p
	}
	return systemPrompts[PtBR]
}

var phrases = map[Phrase]map[Code]string{
	Fallback: {
		PtBR: "Desculpe, estou com dificuldades para processar sua solicitação no momento. Tente novamente em alguns instantes.",
		EnUS: "Sorry, I'm having trouble processing your request right now. Please try again in a moment.",
		EsES: "Lo siento, tengo problemas para procesar tu solicitud en este momento. Inténtalo de nuevo en unos momentos.",
		FrFR: "Désolé, j'ai des difficultés à traiter votre demande en ce moment. Veuillez réessayer dans quelques instants.",
		DeDE: "Entschuldigung, ich habe gerade Schwierigkeiten, Ihre Anfrage zu bearbeiten. Versuchen Sie es in einem Moment noch einmal.",
	},
	Apology: {
		PtBR: "Desculpe, ocorreu um erro ao processar seu comando.",
		EnUS: "Sorry, an error occurred while processing your command.",
		EsES: "Lo siento, ocurrió un error al procesar tu comando.",
		FrFR: "Désolé, une erreur s'est produite lors du traitement de votre commande.",
		DeDE: "Entschuldigung, bei der Verarbeitung Ihres Befehls ist ein Fehler aufgetreten.",
	},
	NotConfigured: {
		PtBR: "Sistema de IA não configurado. Verifique sua chave de API.",
		EnUS: "AI system not configured. Please check your API key.",
		EsES: "Sistema de IA no configurado. Verifica tu clave de API.",
		FrFR: "Système d'IA non configuré. Vérifiez votre clé API.",
		DeDE: "KI-System nicht konfiguriert. Bitte überprüfen Sie Ihren API-Schlüssel.",
	},
	LanguageChanged: {
		PtBR: "Idioma alterado para português.",
		EnUS: "Language changed to English.",
		EsES: "Idioma cambiado a español.",
		FrFR: "Langue changée en français.",
		DeDE: "Sprache auf Deutsch umgestellt.",
	},
	VolumeUp: {
		PtBR: "Volume aumentado.",
		EnUS: "Volume increased.",
		EsES: "Volumen aumentado.",
		FrFR: "Volume augmenté.",
		DeDE: "Lautstärke erhöht.",
	},
	VolumeDown: {
		PtBR: "Volume diminuído.",
		EnUS: "Volume decreased.",
		EsES: "Volumen disminuido.",
		FrFR: "Volume diminué.",
		DeDE: "Lautstärke verringert.",
	},
	Muted: {
		PtBR: "Som silenciado.",
		EnUS: "Sound muted.",
		EsES: "Sonido silenciado.",
		FrFR: "Son coupé.",
		DeDE: "Ton stummgeschaltet.",
	},
	VolumeSet: {
		PtBR: "Volume ajustado para %d por cento.",
		EnUS: "Volume set to %d percent.",
		EsES: "Volumen ajustado al %d por ciento.",
		FrFR: "Volume réglé à %d pour cent.",
		DeDE: "Lautstärke auf %d Prozent eingestellt.",
	},
	PhotoTaken: {
		PtBR: "Foto capturada e salva como %s.",
		EnUS: "Photo captured and saved as %s.",
		EsES: "Foto capturada y guardada como %s.",
		FrFR: "Photo prise et enregistrée sous %s.",
		DeDE: "Foto aufgenommen und als %s gespeichert.",
	},
	ScreenshotTaken: {
		PtBR: "Captura de tela salva como %s.",
		EnUS: "Screenshot saved as %s.",
		EsES: "Captura de pantalla guardada como %s.",
		FrFR: "Capture d'écran enregistrée sous %s.",
		DeDE: "Bildschirmfoto als %s gespeichert.",
	},
	CameraUnavailable: {
		PtBR: "Não consegui acessar a câmera.",
		EnUS: "I could not access the camera.",
		EsES: "No pude acceder a la cámara.",
		FrFR: "Je n'ai pas pu accéder à la caméra.",
		DeDE: "Ich konnte nicht auf die Kamera zugreifen.",
	},
	Opening: {
		PtBR: "Abrindo %s.",
		EnUS: "Opening %s.",
		EsES: "Abriendo %s.",
		FrFR: "Ouverture de %s.",
		DeDE: "Öffne %s.",
	},
	Searching: {
		PtBR: "Pesquisando por %s.",
		EnUS: "Searching for %s.",
		EsES: "Buscando %s.",
		FrFR: "Recherche de %s.",
		DeDE: "Suche nach %s.",
	},
	SystemInfo: {
		PtBR: "Sistema %s com %d processadores. Carga média %.2f.",
		EnUS: "%s system with %d processors. Load average %.2f.",
		EsES: "Sistema %s con %d procesadores. Carga media %.2f.",
		FrFR: "Système %s avec %d processeurs. Charge moyenne %.2f.",
		DeDE: "%s-System mit %d Prozessoren. Durchschnittliche Last %.2f.",
	},
	ActionFailed: {
		PtBR: "Não foi possível concluir a ação.",
		EnUS: "I could not complete that action.",
		EsES: "No fue posible completar la acción.",
		FrFR: "Je n'ai pas pu terminer cette action.",
		DeDE: "Die Aktion konnte nicht abgeschlossen werden.",
	},
	Listening: {
		PtBR: "Ouvindo...",
		EnUS: "Listening...",
		EsES: "Escuchando...",
		FrFR: "J'écoute...",
		DeDE: "Ich höre zu...",
	},
}

// Say returns phrase p in language c, formatted with args when the phrase
// carries verbs. The fallback answer defaults to English for unknown
// languages, everything else to pt-BR.
func Say(c Code, p Phrase, args ...any) string {
	tbl, ok := phrases[p]
	if !ok {
		return ""
	}

	s, ok := tbl[c]
	if !ok {
		if p == Fallback {
			s = tbl[EnUS]
		} else {
			s = tbl[PtBR]
		}
	}

	if len(args) > 0 {
		return fmt.Sprintf(s, args...)
	}
	return s
}

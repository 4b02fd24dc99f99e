package jarvis

import (
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"jarvis/internal/lang"
	"jarvis/internal/wake"
)

type ActionKind int

const (
	ActNone ActionKind = iota
	ActPhoto
	ActScreenshot
	ActVolumeUp
	ActVolumeDown
	ActMute
	ActVolumeSet
	ActLanguage
	ActOpenApp
	ActOpenSite
	ActSearch
	ActSystemInfo
)

func (k ActionKind) String() string {
	switch k {
	case ActPhoto:
		return "photo"
	case ActScreenshot:
		return "screenshot"
	case ActVolumeUp:
		return "volume_up"
	case ActVolumeDown:
		return "volume_down"
	case ActMute:
		return "mute"
	case ActVolumeSet:
		return "volume_set"
	case ActLanguage:
		return "language"
	case ActOpenApp:
		return "open_app"
	case ActOpenSite:
		return "open_site"
	case ActSearch:
		return "search"
	case ActSystemInfo:
		return "system_info"
	}
	return "none"
}

// Action is a command handled on this machine instead of by the model.
type Action struct {
	Kind  ActionKind
	Arg   string    // app, site or search query
	Level int       // percent: target for ActVolumeSet, step for up/down (0 = default)
	Lang  lang.Code // target of ActLanguage
}

type word struct {
	orig string
	norm string
}

func splitWords(text string) []word {
	f := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make([]word, len(f))
	for i, w := range f {
		out[i] = word{orig: w, norm: wake.Normalize(w)}
	}
	return out
}

// find returns the word span [start, end) of the first occurrence of
// phrase in ws, or -1, -1.
func find(ws []word, phrase string) (int, int) {
	p := strings.Fields(phrase)
	for i := 0; i+len(p) <= len(ws); i++ {
		ok := true
		for j := range p {
			if ws[i+j].norm != p[j] {
				ok = false
				break
			}
		}
		if ok {
			return i, i + len(p)
		}
	}
	return -1, -1
}

func findAny(ws []word, phrases []string) (int, int) {
	for _, p := range phrases {
		if s, e := find(ws, p); s >= 0 {
			return s, e
		}
	}
	return -1, -1
}

var politeness = map[string]bool{
	"por": true, "favor": true, "please": true, "jarvis": true, "ok": true,
	"hey": true, "ei": true, "oi": true, "bitte": true, "s": true, "il": true,
	"te": true, "plait": true, "vous": true, "agora": true, "now": true,
}

// commandLead are words that may open an imperative before the action
// phrase itself ("faz uma captura de tela", "coloque no mudo").
var commandLead = union(politeness, []string{
	"faz", "faca", "faze", "tire", "tira", "tirar", "take", "make", "capture",
	"haz", "fais", "mach", "toma", "modo", "mode", "coloque", "coloca", "deixe",
	"deixa", "put", "set", "on", "em", "no", "en", "uma", "um", "a", "an", "une",
	"un", "ein", "me", "mir", "mostre", "mostra", "show", "zeige", "dame", "da",
})

// langLead may precede the language trigger ("mudar idioma para ...").
var langLead = union(politeness, []string{
	"mudar", "mude", "muda", "alterar", "altere", "altera", "trocar", "troque", "troca",
	"change", "set", "cambiar", "cambia", "cambie", "changer", "andere", "wechsle",
	"o", "a", "the", "el", "la", "le", "die", "de", "do", "da", "du", "your", "seu", "tu", "ton",
})

func union(base map[string]bool, extra []string) map[string]bool {
	out := make(map[string]bool, len(base)+len(extra))
	for k := range base {
		out[k] = true
	}
	for _, w := range extra {
		out[w] = true
	}
	return out
}

// leading reports whether everything before index i is filler.
func leading(ws []word, i int) bool {
	return leadingIn(ws, i, politeness)
}

func leadingIn(ws []word, i int, allowed map[string]bool) bool {
	for _, w := range ws[:i] {
		if !allowed[w.norm] {
			return false
		}
	}
	return true
}

// opening finds the first phrase that opens the sentence, filler aside.
func opening(ws []word, phrases []string) (int, int) {
	for _, p := range phrases {
		if s, e := find(ws, p); s >= 0 && leadingIn(ws, s, commandLead) {
			return s, e
		}
	}
	return -1, -1
}

func isCommand(ws []word, phrases []string) bool {
	s, _ := opening(ws, phrases)
	return s >= 0
}

var articles = map[string]bool{
	"o": true, "a": true, "os": true, "as": true, "um": true, "uma": true,
	"the": true, "an": true, "el": true, "la": true, "los": true, "las": true,
	"un": true, "una": true, "le": true, "les": true, "une": true,
	"der": true, "die": true, "das": true, "den": true, "ein": true, "eine": true,
	"site": true, "website": true, "sitio": true, "pagina": true, "page": true,
	"app": true, "aplicativo": true, "programa": true, "application": true,
	"por": true, "sobre": true, "for": true, "about": true, "nach": true, "de": true,
}

func rest(ws []word) string {
	for len(ws) > 0 && articles[ws[0].norm] {
		ws = ws[1:]
	}
	parts := make([]string, len(ws))
	for i, w := range ws {
		parts[i] = w.orig
	}
	return strings.Join(parts, " ")
}

var (
	langTriggers = []string{
		"idioma", "lingua", "language", "langue", "sprache",
		"fale", "falar", "fala", "speak", "habla", "hablar", "parle", "parler", "sprich",
		"switch to", "mude para", "cambia a",
	}
	volumeUp = []string{
		"aumentar volume", "aumentar o volume", "aumente o volume", "aumenta o volume", "aumentar som",
		"volume up", "turn up", "louder", "increase volume", "increase the volume",
		"sube el volumen", "subir volumen", "subir el volumen", "aumenta el volumen",
		"augmente le volume", "monte le son", "lauter",
	}
	volumeDown = []string{
		"diminuir volume", "diminuir o volume", "diminua o volume", "abaixar volume", "abaixa o volume", "abaixe o volume",
		"volume down", "turn down", "quieter", "decrease volume", "lower the volume", "decrease the volume",
		"baja el volumen", "bajar volumen", "bajar el volumen",
		"baisse le volume", "leiser",
	}
	mute = []string{
		"mudo", "silenciar", "silencie", "silencia", "mute", "silencio", "couper le son", "coupe le son",
		"stumm", "stummschalten", "ton aus",
	}
	// words allowed after a mute verb: "silenciar o som", "mute the audio please"
	muteTail = union(politeness, []string{
		"o", "a", "the", "el", "le", "den", "das", "som", "sound", "audio", "volume", "volumen",
		"sonido", "son", "ton", "computador", "computer", "pc", "sistema", "system",
	})
	screenshot = []string{
		"captura de tela", "print da tela", "tirar print", "tira print", "screenshot", "screen shot",
		"captura de pantalla", "capture d ecran", "bildschirmfoto",
	}
	photo = []string{
		"tirar foto", "tirar uma foto", "tire uma foto", "tira uma foto", "capturar foto", "capture uma foto",
		"take a photo", "take a picture", "take photo", "take picture", "snap a photo",
		"toma una foto", "tomar una foto", "saca una foto", "sacar una foto",
		"prends une photo", "prendre une photo", "mach ein foto",
	}
	cameraNouns = []string{"camera", "camara", "kamera", "webcam"}
	cameraVerbs = map[string]bool{
		"abrir": true, "abra": true, "abre": true, "ligar": true, "ligue": true, "liga": true,
		"open": true, "start": true, "use": true, "usar": true, "activa": true,
		"activar": true, "enciende": true, "ouvre": true, "ouvrir": true, "allume": true,
		"offne": true, "starte": true,
	}
	search = []string{
		"pesquisar", "pesquise", "pesquisa", "procurar", "procure", "busque", "buscar", "busca",
		"search for", "search", "google", "look up",
		"rechercher", "recherche", "cherche", "suche nach", "suche",
	}
	open = []string{
		"abrir", "abra", "abre", "open", "launch", "start", "ouvrir", "ouvre", "lance", "offne", "starte",
	}
	sysInfo = []string{
		"informacoes do sistema", "informacao do sistema", "status do sistema",
		"system info", "system information", "system status",
		"informacion del sistema", "estado del sistema",
		"informations systeme", "etat du systeme", "systeminformationen", "systemstatus",
	}
	siteHints = map[string]bool{
		"youtube": true, "google": true, "github": true, "gmail": true, "netflix": true,
		"wikipedia": true, "twitter": true, "facebook": true, "instagram": true, "reddit": true,
		"whatsapp": true, "linkedin": true,
	}
	volumeNouns = []string{"volume", "volumen", "lautstarke", "som", "sound"}
	setVerbs    = []string{
		"set", "change", "put", "coloca", "coloque", "colocar", "ajusta", "ajuste", "ajustar",
		"define", "defina", "definir", "mude", "muda", "mudar", "deixe", "deixa",
		"pon", "pone", "ponga", "poner", "mets", "mettre", "regle", "stelle", "stell",
	}
	// words allowed around the number in a bare "volume 40"
	levelFiller = map[string]bool{
		"para": true, "pra": true, "to": true, "at": true, "em": true, "a": true, "auf": true,
		"al": true, "en": true, "percent": true, "por": true, "cento": true, "prozent": true,
		"pour": true, "cent": true, "porciento": true, "o": true, "the": true, "el": true, "le": true,
	}
	levelRe = regexp.MustCompile(`\b(?:volume|volumen|lautstarke|som|sound)\b\D{0,16}?(\d{1,3})\b`)
)

// Route picks a local action for text, if one applies. Actions only fire
// for imperatives: the action phrase has to open the sentence, so
// questions that merely mention a camera or the volume go to the model.
func Route(text string) (Action, bool) {
	ws := splitWords(text)
	if len(ws) == 0 {
		return Action{}, false
	}

	if c, ok := languageSwitch(ws); ok {
		return Action{Kind: ActLanguage, Lang: c}, true
	}

	norms := make([]string, len(ws))
	for i, w := range ws {
		norms[i] = w.norm
	}
	level := -1
	if m := levelRe.FindStringSubmatch(strings.Join(norms, " ")); m != nil {
		n, _ := strconv.Atoi(m[1])
		level = min(n, 100)
	}

	switch {
	case isCommand(ws, volumeUp):
		return Action{Kind: ActVolumeUp, Level: max(level, 0)}, true
	case isCommand(ws, volumeDown):
		return Action{Kind: ActVolumeDown, Level: max(level, 0)}, true
	case level >= 0 && (isCommand(ws, setVerbs) || bareLevel(ws)):
		return Action{Kind: ActVolumeSet, Level: level}, true
	case isMute(ws):
		return Action{Kind: ActMute}, true
	case isCommand(ws, screenshot):
		return Action{Kind: ActScreenshot}, true
	case isCommand(ws, photo) || opensCamera(ws):
		return Action{Kind: ActPhoto}, true
	case isCommand(ws, sysInfo):
		return Action{Kind: ActSystemInfo}, true
	}

	if s, e := findAny(ws, search); s >= 0 && leading(ws, s) {
		if q := rest(ws[e:]); q != "" {
			return Action{Kind: ActSearch, Arg: q}, true
		}
	}

	if s, e := findAny(ws, open); s >= 0 && leading(ws, s) {
		target := rest(ws[e:])
		if target == "" {
			return Action{}, false
		}
		if d := domain(text); d != "" {
			return Action{Kind: ActOpenSite, Arg: d}, true
		}
		if siteHints[wake.Normalize(target)] {
			return Action{Kind: ActOpenSite, Arg: strings.ToLower(target)}, true
		}
		return Action{Kind: ActOpenApp, Arg: target}, true
	}

	return Action{}, false
}

// languageSwitch needs the trigger at the start ("fale inglês", "mudar
// idioma para inglês") and the language named after it.
func languageSwitch(ws []word) (lang.Code, bool) {
	for _, p := range langTriggers {
		s, e := find(ws, p)
		if s < 0 || !leadingIn(ws, s, langLead) {
			continue
		}
		for _, w := range ws[e:] {
			if len(w.norm) <= 2 {
				continue
			}
			if c, ok := lang.Parse(w.norm); ok {
				return c, true
			}
		}
	}
	return "", false
}

// bareLevel matches "volume 40", "volume para 40%", "Lautstärke auf 80".
func bareLevel(ws []word) bool {
	i := 0
	for i < len(ws) && politeness[ws[i].norm] {
		i++
	}
	if i == len(ws) || !slices.Contains(volumeNouns, ws[i].norm) {
		return false
	}
	numbers := 0
	for _, w := range ws[i+1:] {
		switch {
		case isNumber(w.norm):
			numbers++
		case !levelFiller[w.norm] && !politeness[w.norm]:
			return false
		}
	}
	return numbers == 1
}

func isNumber(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}

// isMute accepts "mute", "modo mudo", "silenciar o som"; a mute verb
// followed by anything else ("mute someone on zoom") is not a command.
func isMute(ws []word) bool {
	_, e := opening(ws, mute)
	if e < 0 {
		return false
	}
	for _, w := range ws[e:] {
		if !muteTail[w.norm] {
			return false
		}
	}
	return true
}

// opensCamera accepts a camera noun right after an opening verb, articles
// in between allowed ("abre a câmera", "open the webcam").
func opensCamera(ws []word) bool {
	s, _ := findAny(ws, cameraNouns)
	if s < 0 {
		return false
	}
	j := s - 1
	for j >= 0 && articles[ws[j].norm] {
		j--
	}
	return j >= 0 && cameraVerbs[ws[j].norm] && leading(ws, j)
}

var domainRe = regexp.MustCompile(`(?i)\b([a-z0-9-]+(?:\.[a-z0-9-]+)+(?:/\S*)?)`)

func domain(text string) string {
	return strings.TrimRight(domainRe.FindString(text), ".!?,")
}

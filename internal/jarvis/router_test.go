package jarvis

import (
	"testing"

	"jarvis/internal/lang"
)

func TestRoute(t *testing.T) {
	tests := []struct {
		text string
		want Action
		ok   bool
	}{
		{"tire uma foto", Action{Kind: ActPhoto}, true},
		{"Jarvis, abre a câmera", Action{Kind: ActPhoto}, true},
		{"take a picture please", Action{Kind: ActPhoto}, true},
		{"faz uma captura de tela", Action{Kind: ActScreenshot}, true},
		{"Aumentar o volume", Action{Kind: ActVolumeUp}, true},
		{"turn up the volume by 20", Action{Kind: ActVolumeUp, Level: 20}, true},
		{"baja el volumen", Action{Kind: ActVolumeDown}, true},
		{"modo mudo", Action{Kind: ActMute}, true},
		{"volume para 40%", Action{Kind: ActVolumeSet, Level: 40}, true},
		{"Lautstärke auf 250", Action{Kind: ActVolumeSet, Level: 100}, true},
		{"mudar idioma para inglês", Action{Kind: ActLanguage, Lang: lang.EnUS}, true},
		{"please speak Spanish", Action{Kind: ActLanguage, Lang: lang.EsES}, true},
		{"parle français", Action{Kind: ActLanguage, Lang: lang.FrFR}, true},
		{"abrir o navegador", Action{Kind: ActOpenApp, Arg: "navegador"}, true},
		{"por favor abra o Spotify", Action{Kind: ActOpenApp, Arg: "Spotify"}, true},
		{"open YouTube", Action{Kind: ActOpenSite, Arg: "youtube"}, true},
		{"abrir github.com/golang/go.", Action{Kind: ActOpenSite, Arg: "github.com/golang/go"}, true},
		{"pesquisar previsão do tempo", Action{Kind: ActSearch, Arg: "previsão do tempo"}, true},
		{"search for golang generics", Action{Kind: ActSearch, Arg: "golang generics"}, true},
		{"informações do sistema", Action{Kind: ActSystemInfo}, true},
		{"como abrir um arquivo em python?", Action{}, false},
		{"qual a capital da França?", Action{}, false},
		{"what language is spoken in Brazil", Action{}, false},
		{"", Action{}, false},
		{"open the webcam", Action{Kind: ActPhoto}, true},
		{"mute", Action{Kind: ActMute}, true},
		{"silenciar o som", Action{Kind: ActMute}, true},
		{"coloca o volume em 25", Action{Kind: ActVolumeSet, Level: 25}, true},
		{"set the volume to 70 percent", Action{Kind: ActVolumeSet, Level: 70}, true},
		{"volume 15", Action{Kind: ActVolumeSet, Level: 15}, true},
		{"what camera should I buy for vlogging", Action{}, false},
		{"qual a melhor câmera para comprar", Action{}, false},
		{"how do I mute someone on zoom", Action{}, false},
		{"what is the volume of 2 liters in cups", Action{}, false},
		{"do you speak english", Action{}, false},
		{"how do I take a screenshot on a mac", Action{}, false},
		{"can you turn up the heat", Action{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := Route(tt.text)
			if ok != tt.ok || got != tt.want {
				t.Fatalf("Route(%q) = %+v, %v; want %+v, %v", tt.text, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestActionKind_String(t *testing.T) {
	if ActVolumeSet.String() != "volume_set" || ActNone.String() != "none" {
		t.Fatal("unexpected names")
	}
}

package parsers

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alvarorichard/anistream/internal/models"
)

var base, _ = url.Parse("https://animefire.plus/pesquisar/naruto")

const searchPage = `<html><body>
<div class="row ml-1 mr-1">
  <div class="divCardUltimosEps">
    <article class="card">
      <a href="/animes/naruto-todos-os-episodios">
        <img class="imgAnimes" src="data:image/gif;base64,R0l" data-src="https://animefire.plus/img/animes/naruto-large.webp">
        <h3 class="animeTitle">Naruto</h3>
      </a>
    </article>
  </div>
  <div class="divCardUltimosEps">
    <article class="card">
      <a href="https://animefire.plus/animes/naruto-shippuden-todos-os-episodios">
        <h3 class="animeTitle">Naruto Shippuden</h3>
      </a>
    </article>
  </div>
</div>
</body></html>`

func TestParseSearchCards(t *testing.T) {
	t.Parallel()

	got, err := ParseSearch(searchPage, base)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "Naruto", got[0].Name)
	assert.Equal(t, "https://animefire.plus/animes/naruto-todos-os-episodios", got[0].URL)
	assert.Equal(t, "https://animefire.plus/img/animes/naruto-large.webp", got[0].ImageURL)
	assert.Equal(t, SourceName, got[0].Source)
	assert.Equal(t, "Naruto Shippuden", got[1].Name)
}

func TestParseSearchListFallback(t *testing.T) {
	t.Parallel()

	html := `<div class="row ml-1 mr-1"><a href="/animes/one-piece">One Piece</a><a href="/x"> </a></div>`
	got, err := ParseSearch(html, base)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "https://animefire.plus/animes/one-piece", got[0].URL)
}

func TestParseSearchCardFallback(t *testing.T) {
	t.Parallel()

	html := `<div class="card_ani"><div class="div_img"><img src="/c.jpg"></div><div class="ani_name"><a href="/animes/bleach">Bleach</a></div></div>`
	got, err := ParseSearch(html, base)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Bleach", got[0].Name)
	assert.Equal(t, "https://animefire.plus/c.jpg", got[0].ImageURL)
}

func TestParseSearchNoResults(t *testing.T) {
	t.Parallel()

	got, err := ParseSearch(`<p>Nenhum resultado</p>`, base)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestParseEpisodesSorted(t *testing.T) {
	t.Parallel()

	html := `<div class="div_video_list">
	<a class="lEp epT divNumEp smallbox px-2 mx-1 text-left d-flex" href="/animes/naruto/10">Episódio 10</a>
	<a class="lEp epT divNumEp smallbox px-2 mx-1 text-left d-flex" href="/animes/naruto/2">Episódio 2</a>
	<a class="lEp epT divNumEp smallbox px-2 mx-1 text-left d-flex" href="/animes/naruto/1">Episódio 1</a>
	<a class="lEp epT divNumEp smallbox px-2 mx-1 text-left d-flex" href="/animes/naruto/1">Episódio 1</a>
	<a class="lEp epT divNumEp smallbox px-2 mx-1 text-left d-flex" href="/animes/naruto/filme">Filme</a>
	</div>`

	got, err := ParseEpisodes(html, base)
	require.NoError(t, err)

	nums := make([]int, 0, len(got))
	for _, e := range got {
		nums = append(nums, e.Num)
	}
	assert.Equal(t, []int{1, 1, 2, 10}, nums)
	assert.Equal(t, "https://animefire.plus/animes/naruto/1", got[0].URL)
	assert.Equal(t, "Episódio 1", got[0].Number)
}

const detailsPage = `<html><head>
<meta property="og:image" content="https://animefire.plus/img/animes/naruto-large.webp">
<meta property="og:description" content="fallback synopsis">
</head><body>
<div class="div_anime_names"><h1 class="quicksand400">Naruto</h1></div>
<div class="animeInfo"><b>Status do Anime:</b> <span class="spanAnimeInfo">Completo</span></div>
<div class="animeInfo"><b>Ano:</b> <span class="spanAnimeInfo">Outono de 2002</span></div>
<a class="spanGeneros" href="/genero/acao">Ação</a>
<a class="spanGeneros" href="/genero/aventura">Aventura</a>
<a class="spanGeneros" href="/genero/acao">Ação</a>
<div class="divSinopse"><span class="spanAnimeInfo">Naruto Uzumaki quer ser Hokage.</span></div>
<a href="https://anilist.co/anime/20/Naruto">AniList</a>
<a href="https://myanimelist.net/anime/20/Naruto">MAL</a>
<div class="divSimilares">
  <article><a href="/animes/boruto"><img data-src="/img/boruto.webp"><h3>Boruto</h3></a></article>
  <article><a href="/animes/naruto-shippuden" title="Naruto Shippuden"></a></article>
  <article><a href="/animes/boruto"><h3>Boruto</h3></a></article>
</div>
</body></html>`

func TestParseDetails(t *testing.T) {
	t.Parallel()

	page, _ := url.Parse("https://animefire.plus/animes/naruto-todos-os-episodios")
	got, err := ParseDetails(detailsPage, page)
	require.NoError(t, err)

	assert.Equal(t, "Naruto", got.Name)
	assert.Equal(t, page.String(), got.URL)
	assert.Equal(t, "https://animefire.plus/img/animes/naruto-large.webp", got.ImageURL)
	assert.Equal(t, "Naruto Uzumaki quer ser Hokage.", got.Synopsis)
	assert.Equal(t, []string{"Ação", "Aventura"}, got.Genres)
	assert.Equal(t, "Completo", got.Status)
	assert.Equal(t, "2002", got.Year)
	assert.Equal(t, 20, got.AnilistID)
	assert.Equal(t, 20, got.MalID)
	assert.Equal(t, "20", got.AltID())
}

func TestParseDetailsWithoutTitle(t *testing.T) {
	t.Parallel()

	_, err := ParseDetails(`<html><body></body></html>`, base)
	assert.Error(t, err)
}

func TestParseRelated(t *testing.T) {
	t.Parallel()

	got, err := ParseRelated(detailsPage, base)
	require.NoError(t, err)

	assert.Equal(t, []models.Anime{
		{Name: "Boruto", URL: "https://animefire.plus/animes/boruto", ImageURL: "https://animefire.plus/img/boruto.webp", Source: SourceName},
		{Name: "Naruto Shippuden", URL: "https://animefire.plus/animes/naruto-shippuden", Source: SourceName},
	}, got)
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []Kind{KindDetails, KindEpisodes, KindRelated, KindSearch}, Kinds())

	fn, ok := Lookup(KindSearch)
	require.True(t, ok)
	out, err := fn(searchPage, base)
	require.NoError(t, err)
	assert.Len(t, out, 2)

	_, ok = Lookup("watch")
	assert.False(t, ok)
}

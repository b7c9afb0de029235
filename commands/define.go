package commands

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/bbars/chunkgate/service"
	"github.com/bbars/chunkgate/service/types"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

// Manifest describes sites and the header policy of their resources.
type Manifest struct {
	Sites []ManifestSite `yaml:"sites"`
}

type ManifestSite struct {
	Name      string             `yaml:"name"`
	Methods   []string           `yaml:"methods"`
	Resources []ManifestResource `yaml:"resources"`
}

type ManifestResource struct {
	Path       string                   `yaml:"path"`
	Properties types.ResourceProperties `yaml:"properties"`
	Cache      types.CacheControl       `yaml:"cache"`
	CORS       ManifestCORS             `yaml:"cors"`
	Redirect   types.Redirect           `yaml:"redirect"`

	// File - content to publish, relative to the manifest
	File string `yaml:"file"`
}

type ManifestCORS struct {
	types.CORSPolicy `yaml:",inline"`
	Methods          []string `yaml:"methods"`
}

func ParseManifest(data []byte) (m *Manifest, err error) {
	m = &Manifest{}
	err = yaml.Unmarshal(data, m)
	if err != nil {
		m = nil
		err = errors.Wrap(err, "parse manifest")
		return
	}
	for _, site := range m.Sites {
		if site.Name == "" {
			m = nil
			err = errors.New("site without name")
			return
		}
	}
	return
}

func (ms ManifestSite) Site() (site *types.Site, err error) {
	site = &types.Site{
		Name:    ms.Name,
		Methods: types.MethodMaskRead,
	}
	if len(ms.Methods) > 0 {
		site.Methods, err = types.ParseMethodMask(ms.Methods)
		if err != nil {
			site = nil
			err = errors.Wrapf(err, "methods of site %+q", ms.Name)
			return
		}
	}
	return
}

func (mr ManifestResource) Resource(site string) (res *types.Resource, err error) {
	cors := mr.CORS.CORSPolicy
	cors.Methods, err = types.ParseMethodMask(mr.CORS.Methods)
	if err != nil {
		err = errors.Wrapf(err, "cors methods of %s%s", site, mr.Path)
		return
	}
	res = &types.Resource{
		Site:     site,
		Path:     mr.Path,
		MimeType: mr.Properties.MimeType,
		Charset:  mr.Properties.Charset,
		Encoding: mr.Properties.Encoding,
		Language: mr.Properties.Language,
	}
	res.SetHeaderInfo(types.HeaderInfo{
		Cache:    mr.Cache,
		CORS:     cors,
		Redirect: mr.Redirect,
	})
	return
}

func NewDefineCommand(initPublisher InitPublisher) *cli.Command {
	d := define{
		jsonOut: json.NewEncoder(os.Stdout),
	}
	return &cli.Command{
		Name:      "define",
		Usage:     "Create sites and resource policies from a YAML manifest",
		ArgsUsage: "manifest.yaml...",
		Action:    d.Action,
		Before: func(ctx *cli.Context) (err error) {
			d.publisher, err = initPublisher(ctx)
			return
		},
	}
}

type define struct {
	publisher *service.Publisher
	jsonOut   *json.Encoder
}

func (d *define) Action(ctx *cli.Context) (err error) {
	for _, manifestPath := range ctx.Args().Slice() {
		err = d.apply(ctx, manifestPath)
		if err != nil {
			err = errors.Wrapf(err, "apply %+q", manifestPath)
			return
		}
	}
	return
}

func (d *define) apply(ctx *cli.Context, manifestPath string) (err error) {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return
	}
	m, err := ParseManifest(data)
	if err != nil {
		return
	}

	repo := d.publisher.Repo
	for _, ms := range m.Sites {
		var site *types.Site
		site, err = ms.Site()
		if err != nil {
			return
		}
		err = repo.PutSite(ctx.Context, site)
		if err != nil {
			return
		}

		for _, mr := range ms.Resources {
			if mr.File != "" {
				err = d.publish(ctx, filepath.Join(filepath.Dir(manifestPath), mr.File), site.Name, mr)
				if err != nil {
					return
				}
			}

			var res *types.Resource
			res, err = mr.Resource(site.Name)
			if err != nil {
				return
			}
			err = repo.DefineResource(ctx.Context, res)
			if err != nil {
				return
			}
			jsonErr := d.jsonOut.Encode(res)
			if jsonErr != nil {
				err = jsonErr
				return
			}
		}
	}
	return
}

func (d *define) publish(ctx *cli.Context, filePath string, site string, mr ManifestResource) (err error) {
	f, err := os.Open(filePath)
	if err != nil {
		return
	}
	defer func() {
		closeErr := f.Close()
		if closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	props := mr.Properties
	_, err = d.publisher.Publish(ctx.Context, service.PublishRequest{
		Site:       site,
		Path:       mr.Path,
		Properties: &props,
	}, f)
	return
}

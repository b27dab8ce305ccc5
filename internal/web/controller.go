package web

import (
	"mime"
	"net/http"
	"net/url"
	"strconv"

	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/Laisky/laisky-drive/internal/drive"
	"github.com/Laisky/laisky-drive/library/jwt"
)

// Controller binds the drive engine to HTTP routes.
type Controller struct {
	svc      *drive.Service
	refs     *ProjectRefCache
	verifier *jwt.JWT
}

// NewController builds a controller. refs may be nil to skip the redis cache.
func NewController(svc *drive.Service, refs *ProjectRefCache, verifier *jwt.JWT) *Controller {
	if refs == nil {
		refs = NewProjectRefCache(nil, svc)
	}
	return &Controller{svc: svc, refs: refs, verifier: verifier}
}

// Register mounts every drive route under group.
func (c *Controller) Register(group *gin.RouterGroup) {
	group.Use(identityMiddleware(c.verifier))

	group.GET("/projects", c.listProjects)
	group.POST("/projects", c.createProject)
	group.GET("/projects/:project", c.getProject)
	group.PATCH("/projects/:project", c.updateProject)
	group.POST("/projects/:project/members", c.addMember)
	group.POST("/projects/:project/reconcile", c.reconcileQuota)
	group.POST("/projects/:project/retention", c.enforceRetention)
	group.GET("/projects/:project/tree/*path", c.listTree)
	group.POST("/projects/:project/folders", c.createFolder)
	group.POST("/projects/:project/plan", c.planWrite)
	group.POST("/projects/:project/uploads", c.prepareUpload)
	group.POST("/projects/:project/uploads/commit", c.commitUpload)
	group.PUT("/projects/:project/files", c.uploadFile)

	group.GET("/trash", c.listTrash)
	group.POST("/nodes/:id/trash", c.trashNode)
	group.POST("/nodes/:id/restore", c.restoreNode)
	group.DELETE("/nodes/:id", c.deleteNode)
	group.GET("/nodes/:id/versions", c.listVersions)
	group.POST("/nodes/:id/rollback", c.rollback)
	group.POST("/nodes/:id/rename", c.renameNode)
	group.POST("/nodes/:id/move", c.moveNode)
	group.PUT("/nodes/:id/sharing", c.updateSharing)
	group.GET("/nodes/:id/content", c.openNode)
}

// projectID resolves the :project path parameter to a canonical id.
func (c *Controller) projectID(ctx *gin.Context) (string, bool) {
	raw, err := url.PathUnescape(ctx.Param("project"))
	if err != nil {
		abortBadRequest(ctx, "malformed project reference")
		return "", false
	}
	ref, err := c.refs.Resolve(ctx, raw)
	if err != nil {
		abortWithError(ctx, err)
		return "", false
	}
	id, _ := ref.ID()
	return id, true
}

func (c *Controller) listProjects(ctx *gin.Context) {
	projects, err := c.svc.ListProjects(ctx, currentIdentity(ctx))
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	dtos, err := toProjectDTOs(projects)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"projects": dtos})
}

func (c *Controller) createProject(ctx *gin.Context) {
	var req createProjectRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		abortBadRequest(ctx, "invalid request")
		return
	}

	project, err := c.svc.CreateProject(ctx, currentIdentity(ctx), req.Name, req.MaxStorageBytes)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	c.respondProject(ctx, http.StatusCreated, project)
}

func (c *Controller) getProject(ctx *gin.Context) {
	projectID, ok := c.projectID(ctx)
	if !ok {
		return
	}
	project, err := c.svc.GetProject(ctx, currentIdentity(ctx), drive.ProjectByID(projectID))
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	c.respondProject(ctx, http.StatusOK, project)
}

func (c *Controller) updateProject(ctx *gin.Context) {
	projectID, ok := c.projectID(ctx)
	if !ok {
		return
	}
	var req updateProjectRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		abortBadRequest(ctx, "invalid request")
		return
	}

	project, err := c.svc.UpdateProject(ctx, currentIdentity(ctx), projectID, drive.ProjectUpdate{
		Settings:        req.Settings,
		MaxStorageBytes: req.MaxStorageBytes,
	})
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	c.respondProject(ctx, http.StatusOK, project)
}

func (c *Controller) addMember(ctx *gin.Context) {
	projectID, ok := c.projectID(ctx)
	if !ok {
		return
	}
	var req addMemberRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		abortBadRequest(ctx, "invalid request")
		return
	}

	if err := c.svc.AddProjectMember(ctx, currentIdentity(ctx), projectID, req.Email); err != nil {
		abortWithError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (c *Controller) reconcileQuota(ctx *gin.Context) {
	if !c.svc.IsAdmin(currentIdentity(ctx)) {
		abortWithError(ctx, drive.NewError(drive.ErrCodeForbidden, "admin only", false))
		return
	}
	projectID, ok := c.projectID(ctx)
	if !ok {
		return
	}

	total, err := c.svc.ReconcileQuota(ctx, projectID)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, reconcileResponse{ProjectID: projectID, CurrentStorageBytes: total})
}

func (c *Controller) enforceRetention(ctx *gin.Context) {
	identity := currentIdentity(ctx)
	if !c.svc.IsAdmin(identity) {
		abortWithError(ctx, drive.NewError(drive.ErrCodeForbidden, "admin only", false))
		return
	}
	projectID, ok := c.projectID(ctx)
	if !ok {
		return
	}
	var req retentionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		abortBadRequest(ctx, "invalid request")
		return
	}

	limit := 0
	if req.Limit != nil {
		limit = *req.Limit
	} else {
		project, err := c.svc.GetProject(ctx, identity, drive.ProjectByID(projectID))
		if err != nil {
			abortWithError(ctx, err)
			return
		}
		limit = project.Settings.VersionRetentionLimit
	}

	result, err := c.svc.EnforceRetention(ctx, projectID, req.ParentID, req.Filename, limit)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	retired := result.Retired
	if retired == nil {
		retired = []int{}
	}
	ctx.JSON(http.StatusOK, retentionResponse{Retired: retired, FreedBytes: result.FreedBytes})
}

func (c *Controller) listTree(ctx *gin.Context) {
	projectID, ok := c.projectID(ctx)
	if !ok {
		return
	}
	identity := currentIdentity(ctx)

	// membership before any segment lookup
	if _, err := c.svc.GetProject(ctx, identity, drive.ProjectByID(projectID)); err != nil {
		abortWithError(ctx, err)
		return
	}
	resolved, err := c.svc.ResolvePath(ctx, drive.ProjectByID(projectID), drive.SplitPath(ctx.Param("path")))
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	nodes, err := c.svc.ListFolder(ctx, identity, resolved.ProjectID, resolved.FolderID)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	dtos, err := toNodeDTOs(nodes)
	if err != nil {
		abortWithError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, treeResponse{
		ProjectID:   resolved.ProjectID,
		FolderID:    resolved.FolderID,
		Breadcrumbs: resolved.Breadcrumbs,
		Nodes:       dtos,
	})
}

func (c *Controller) createFolder(ctx *gin.Context) {
	projectID, ok := c.projectID(ctx)
	if !ok {
		return
	}
	var req createFolderRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		abortBadRequest(ctx, "invalid request")
		return
	}

	node, err := c.svc.CreateFolder(ctx, currentIdentity(ctx), projectID, req.ParentID, req.Name)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	c.respondNode(ctx, http.StatusCreated, node)
}

// bindWrite parses a JSON write request for the project in the path.
func (c *Controller) bindWrite(ctx *gin.Context, body *writeRequest) (drive.WriteRequest, bool) {
	projectID, ok := c.projectID(ctx)
	if !ok {
		return drive.WriteRequest{}, false
	}
	resolution, err := drive.ParseResolution(body.Resolution)
	if err != nil {
		abortWithError(ctx, err)
		return drive.WriteRequest{}, false
	}
	return drive.WriteRequest{
		ProjectID:   projectID,
		ParentID:    body.ParentID,
		Filename:    body.Filename,
		Size:        body.Size,
		ContentType: body.ContentType,
		Resolution:  resolution,
	}, true
}

func (c *Controller) planWrite(ctx *gin.Context) {
	var body writeRequest
	if err := ctx.ShouldBindJSON(&body); err != nil {
		abortBadRequest(ctx, "invalid request")
		return
	}
	req, ok := c.bindWrite(ctx, &body)
	if !ok {
		return
	}

	plan, err := c.svc.PlanWrite(ctx, currentIdentity(ctx), req)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"plan": plan})
}

func (c *Controller) prepareUpload(ctx *gin.Context) {
	var body writeRequest
	if err := ctx.ShouldBindJSON(&body); err != nil {
		abortBadRequest(ctx, "invalid request")
		return
	}
	req, ok := c.bindWrite(ctx, &body)
	if !ok {
		return
	}

	ticket, err := c.svc.PrepareUpload(ctx, currentIdentity(ctx), req)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	if ticket.Plan.Decision == drive.DecisionConflict {
		ctx.JSON(http.StatusConflict, uploadTicketResponse{Plan: ticket.Plan})
		return
	}

	expiresAt := ticket.ExpiresAt
	ctx.JSON(http.StatusOK, uploadTicketResponse{
		Plan:      ticket.Plan,
		BlobKey:   ticket.BlobKey,
		UploadURL: ticket.UploadURL,
		ExpiresAt: &expiresAt,
	})
}

func (c *Controller) commitUpload(ctx *gin.Context) {
	var body commitRequest
	if err := ctx.ShouldBindJSON(&body); err != nil {
		abortBadRequest(ctx, "invalid request")
		return
	}
	req, ok := c.bindWrite(ctx, &body.writeRequest)
	if !ok {
		return
	}

	result, err := c.svc.CommitWrite(ctx, currentIdentity(ctx), drive.CommitRequest{
		WriteRequest: req,
		BlobKey:      body.BlobKey,
	})
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	c.respondCommit(ctx, result)
}

// uploadFile accepts a multipart upload and streams it through the engine.
func (c *Controller) uploadFile(ctx *gin.Context) {
	logger := gmw.GetLogger(ctx).Named("drive_upload")

	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		abortBadRequest(ctx, "file is required")
		return
	}

	body := writeRequest{
		Filename:    fileHeader.Filename,
		Size:        fileHeader.Size,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Resolution:  ctx.PostForm("resolution"),
	}
	if name := ctx.PostForm("filename"); name != "" {
		body.Filename = name
	}
	if parentID := ctx.PostForm("parent_id"); parentID != "" {
		body.ParentID = &parentID
	}
	req, ok := c.bindWrite(ctx, &body)
	if !ok {
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		abortBadRequest(ctx, "cannot read uploaded file")
		return
	}
	defer func() {
		if err := file.Close(); err != nil {
			logger.Debug("close uploaded file", zap.Error(err))
		}
	}()

	result, err := c.svc.Upload(ctx, currentIdentity(ctx), req, file)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	c.respondCommit(ctx, result)
}

func (c *Controller) listTrash(ctx *gin.Context) {
	nodes, err := c.svc.ListTrash(ctx, currentIdentity(ctx))
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	c.respondNodes(ctx, nodes)
}

func (c *Controller) trashNode(ctx *gin.Context) {
	node, err := c.svc.TrashNode(ctx, currentIdentity(ctx), ctx.Param("id"))
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	c.respondNode(ctx, http.StatusOK, node)
}

func (c *Controller) restoreNode(ctx *gin.Context) {
	node, err := c.svc.RestoreNode(ctx, currentIdentity(ctx), ctx.Param("id"))
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	c.respondNode(ctx, http.StatusOK, node)
}

func (c *Controller) deleteNode(ctx *gin.Context) {
	result, err := c.svc.PermanentlyDelete(ctx, currentIdentity(ctx), ctx.Param("id"))
	if err != nil {
		abortWithError(ctx, err)
		return
	}

	status := http.StatusAccepted
	if result.Inline {
		status = http.StatusOK
	}
	ctx.JSON(status, deleteResponse{
		NodeID:     result.NodeID,
		JobID:      result.JobID,
		FreedBytes: result.FreedBytes,
		Inline:     result.Inline,
	})
}

func (c *Controller) listVersions(ctx *gin.Context) {
	nodes, err := c.svc.ListVersions(ctx, currentIdentity(ctx), ctx.Param("id"))
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	c.respondNodes(ctx, nodes)
}

func (c *Controller) rollback(ctx *gin.Context) {
	result, err := c.svc.RollbackToVersion(ctx, currentIdentity(ctx), ctx.Param("id"))
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	c.respondCommit(ctx, result)
}

func (c *Controller) renameNode(ctx *gin.Context) {
	var req renameRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		abortBadRequest(ctx, "invalid request")
		return
	}
	node, err := c.svc.RenameNode(ctx, currentIdentity(ctx), ctx.Param("id"), req.Name)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	c.respondNode(ctx, http.StatusOK, node)
}

func (c *Controller) moveNode(ctx *gin.Context) {
	var req moveRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		abortBadRequest(ctx, "invalid request")
		return
	}
	node, err := c.svc.MoveNode(ctx, currentIdentity(ctx), ctx.Param("id"), req.ParentID)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	c.respondNode(ctx, http.StatusOK, node)
}

func (c *Controller) updateSharing(ctx *gin.Context) {
	var req sharingRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		abortBadRequest(ctx, "invalid request")
		return
	}
	node, err := c.svc.UpdateSharing(ctx, currentIdentity(ctx), ctx.Param("id"), req.Scope, req.Password)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	c.respondNode(ctx, http.StatusOK, node)
}

// openNode streams file content. Anonymous callers may pass the share
// password in the X-Share-Password header or the password query.
func (c *Controller) openNode(ctx *gin.Context) {
	logger := gmw.GetLogger(ctx).Named("drive_open")

	password := ctx.GetHeader("X-Share-Password")
	if password == "" {
		password = ctx.Query("password")
	}

	body, node, err := c.svc.OpenNode(ctx, currentIdentity(ctx), ctx.Param("id"), password)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	defer func() {
		if err := body.Close(); err != nil {
			logger.Debug("close blob reader", zap.Error(err))
		}
	}()

	contentType := node.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	ctx.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": node.Name}))
	ctx.Header("X-Node-Version", strconv.Itoa(node.Version))
	ctx.DataFromReader(http.StatusOK, node.Size, contentType, body, nil)
}

func (c *Controller) respondNode(ctx *gin.Context, status int, node *drive.Node) {
	dto, err := toNodeDTO(node)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	ctx.JSON(status, dto)
}

func (c *Controller) respondNodes(ctx *gin.Context, nodes []drive.Node) {
	dtos, err := toNodeDTOs(nodes)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"nodes": dtos})
}

func (c *Controller) respondProject(ctx *gin.Context, status int, project *drive.Project) {
	dto, err := toProjectDTO(project)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	ctx.JSON(status, dto)
}

// respondCommit writes 409 with the plan on conflict, otherwise the new node.
func (c *Controller) respondCommit(ctx *gin.Context, result drive.CommitResult) {
	if result.Plan.Decision == drive.DecisionConflict {
		ctx.JSON(http.StatusConflict, commitResponse{Plan: result.Plan})
		return
	}
	dto, err := toNodeDTO(result.Node)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, commitResponse{Plan: result.Plan, Node: dto})
}
